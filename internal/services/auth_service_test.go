package services

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gavelstr/gavelstr/internal/config"
)

func testAuthService(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(config.AuthConfig{
		JWTSecret:       "test-secret",
		JWTExpiration:   24,
		ChallengeExpiry: 5,
	})
}

func signChallenge(t *testing.T, priv *btcec.PrivateKey, text string) string {
	t.Helper()
	sig, err := schnorr.Sign(priv, chainhash.HashB([]byte(text)))
	if err != nil {
		t.Fatalf("sign challenge: %v", err)
	}
	return hex.EncodeToString(sig.Serialize())
}

func TestLoginRoundtrip(t *testing.T) {
	t.Parallel()

	svc := testAuthService(t)
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pubkey := hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))

	challenge := svc.GenerateChallenge()
	token, err := svc.Login(pubkey, challenge.ID, signChallenge(t, priv, challenge.Text))
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	got, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if got != pubkey {
		t.Fatalf("token bound to %q, expected %q", got, pubkey)
	}
}

func TestLoginRejectsWrongKey(t *testing.T) {
	t.Parallel()

	svc := testAuthService(t)
	signer, _ := btcec.NewPrivateKey()
	other, _ := btcec.NewPrivateKey()
	otherPub := hex.EncodeToString(schnorr.SerializePubKey(other.PubKey()))

	challenge := svc.GenerateChallenge()
	if _, err := svc.Login(otherPub, challenge.ID, signChallenge(t, signer, challenge.Text)); err == nil {
		t.Fatalf("expected login failure for a signature from another key")
	}
}

func TestLoginRejectsUnknownChallenge(t *testing.T) {
	t.Parallel()

	svc := testAuthService(t)
	priv, _ := btcec.NewPrivateKey()
	pubkey := hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))

	if _, err := svc.Login(pubkey, "never-issued", signChallenge(t, priv, "whatever")); err == nil {
		t.Fatalf("expected login failure for an unknown challenge")
	}
}

func TestChallengeIsSingleUse(t *testing.T) {
	t.Parallel()

	svc := testAuthService(t)
	priv, _ := btcec.NewPrivateKey()
	pubkey := hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))

	challenge := svc.GenerateChallenge()
	sig := signChallenge(t, priv, challenge.Text)
	if _, err := svc.Login(pubkey, challenge.ID, sig); err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := svc.Login(pubkey, challenge.ID, sig); err == nil {
		t.Fatalf("expected replay to be rejected")
	}
}

func TestExpiredChallengeRejected(t *testing.T) {
	t.Parallel()

	svc := testAuthService(t)
	priv, _ := btcec.NewPrivateKey()
	pubkey := hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))

	challenge := svc.GenerateChallenge()
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	if _, err := svc.Login(pubkey, challenge.ID, signChallenge(t, priv, challenge.Text)); err == nil {
		t.Fatalf("expected expired challenge to be rejected")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	t.Parallel()

	svc := testAuthService(t)
	if _, err := svc.ValidateToken("not-a-token"); err == nil {
		t.Fatalf("expected error for malformed token")
	}

	other := NewAuthService(config.AuthConfig{JWTSecret: "different-secret", JWTExpiration: 24, ChallengeExpiry: 5})
	token, err := other.mintToken("some-pubkey")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
