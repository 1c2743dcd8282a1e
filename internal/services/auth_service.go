package services

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gavelstr/gavelstr/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the JWT claims for the local API session
type Claims struct {
	Pubkey string `json:"pubkey"`
	jwt.RegisteredClaims
}

// Challenge is a short-lived message the browser must sign with the user's
// Nostr key to obtain a local API session
type Challenge struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Expires int64  `json:"expires"`
}

// AuthService issues signing challenges and mints session tokens for the
// local API after schnorr signature verification
type AuthService struct {
	cfg config.AuthConfig
	now func() time.Time

	mu         sync.Mutex
	challenges map[string]*Challenge
}

// NewAuthService creates a new AuthService
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		cfg:        cfg,
		now:        time.Now,
		challenges: make(map[string]*Challenge),
	}
}

// GenerateChallenge issues a fresh challenge to be signed by the user's key
func (s *AuthService) GenerateChallenge() *Challenge {
	id := uuid.NewString()
	issued := s.now()
	challenge := &Challenge{
		ID:      id,
		Text:    fmt.Sprintf("Sign this message to authenticate with gavelstr: %s %d", id, issued.Unix()),
		Expires: issued.Add(time.Duration(s.cfg.ChallengeExpiry) * time.Minute).Unix(),
	}

	s.mu.Lock()
	for cid, c := range s.challenges {
		if c.Expires < issued.Unix() {
			delete(s.challenges, cid)
		}
	}
	s.challenges[id] = challenge
	s.mu.Unlock()

	return challenge
}

// Login verifies a schnorr signature over a previously issued challenge and
// returns a session token bound to the signing pubkey. Each challenge can
// be used once.
func (s *AuthService) Login(pubkey, challengeID, signature string) (string, error) {
	s.mu.Lock()
	challenge := s.challenges[challengeID]
	delete(s.challenges, challengeID)
	s.mu.Unlock()

	if challenge == nil {
		return "", fmt.Errorf("unknown challenge")
	}
	if challenge.Expires < s.now().Unix() {
		return "", fmt.Errorf("challenge expired")
	}

	valid, err := verifySchnorr(pubkey, challenge.Text, signature)
	if err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}
	if !valid {
		return "", fmt.Errorf("invalid signature")
	}

	return s.mintToken(pubkey)
}

// ValidateToken parses a session token and returns the pubkey it is bound to
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Pubkey == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Pubkey, nil
}

func (s *AuthService) mintToken(pubkey string) (string, error) {
	issued := s.now()
	claims := &Claims{
		Pubkey: pubkey,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(time.Duration(s.cfg.JWTExpiration) * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// verifySchnorr verifies a 64-byte schnorr signature over the message
// against an x-only public key, both hex encoded
func verifySchnorr(pubkey, message, signature string) (bool, error) {
	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("invalid signature format: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("failed to parse schnorr signature: %w", err)
	}

	pubKeyBytes, err := hex.DecodeString(pubkey)
	if err != nil {
		return false, fmt.Errorf("invalid public key: %w", err)
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("failed to parse public key: %w", err)
	}

	msgHash := chainhash.HashB([]byte(message))
	return sig.Verify(msgHash, pubKey), nil
}
