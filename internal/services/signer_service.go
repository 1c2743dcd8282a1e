package services

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// ErrNoEncryption reports that the current identity has no encryption
// capability. It is a precondition failure, distinct from transport and
// validation errors, and is surfaced before any network call is attempted.
var ErrNoEncryption = errors.New("identity has no encryption capability")

// Signer is the identity capability threaded into every reconciliation and
// messaging call: a public key plus event signing and direct-message
// encryption tied to that key. Implementations never expose private key
// material to callers.
type Signer interface {
	PublicKey() string
	SignEvent(ev *nostr.Event) error
	Encrypt(peerPubkey, plaintext string) (string, error)
	Decrypt(peerPubkey, ciphertext string) (string, error)
	CanEncrypt() bool
}

// LocalSigner holds a secp256k1 private key in memory and implements the
// full Signer capability, including NIP-04 direct-message encryption.
type LocalSigner struct {
	sk string
	pk string
}

// NewLocalSigner creates a signer from a hex or bech32 (nsec) private key
func NewLocalSigner(key string) (*LocalSigner, error) {
	if key == "" {
		return nil, errors.New("no identity key configured")
	}

	sk := key
	if prefix, decoded, err := nip19.Decode(key); err == nil {
		if prefix != "nsec" {
			return nil, fmt.Errorf("unexpected key prefix %q", prefix)
		}
		sk = decoded.(string)
	}

	raw, err := hex.DecodeString(sk)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid private key length %d", len(raw))
	}

	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	return &LocalSigner{sk: sk, pk: pk}, nil
}

// PublicKey returns the hex public key of the identity
func (s *LocalSigner) PublicKey() string {
	return s.pk
}

// SignEvent fills in the event's pubkey, id and signature
func (s *LocalSigner) SignEvent(ev *nostr.Event) error {
	return ev.Sign(s.sk)
}

// Encrypt encrypts a direct-message plaintext for the given peer (NIP-04)
func (s *LocalSigner) Encrypt(peerPubkey, plaintext string) (string, error) {
	shared, err := nip04.ComputeSharedSecret(peerPubkey, s.sk)
	if err != nil {
		return "", fmt.Errorf("compute shared secret: %w", err)
	}
	return nip04.Encrypt(plaintext, shared)
}

// Decrypt decrypts a direct-message ciphertext from the given peer (NIP-04)
func (s *LocalSigner) Decrypt(peerPubkey, ciphertext string) (string, error) {
	shared, err := nip04.ComputeSharedSecret(peerPubkey, s.sk)
	if err != nil {
		return "", fmt.Errorf("compute shared secret: %w", err)
	}
	return nip04.Decrypt(ciphertext, shared)
}

// CanEncrypt reports whether the signer can encrypt and decrypt messages
func (s *LocalSigner) CanEncrypt() bool {
	return true
}

// WatchOnlySigner is an identity without key material. It can be used for
// read paths; signing and encryption fail with capability errors.
type WatchOnlySigner struct {
	pk string
}

// NewWatchOnlySigner creates a watch-only identity from a hex or npub key
func NewWatchOnlySigner(key string) (*WatchOnlySigner, error) {
	pk := key
	if prefix, decoded, err := nip19.Decode(key); err == nil {
		if prefix != "npub" {
			return nil, fmt.Errorf("unexpected key prefix %q", prefix)
		}
		pk = decoded.(string)
	}
	if _, err := hex.DecodeString(pk); err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return &WatchOnlySigner{pk: pk}, nil
}

// PublicKey returns the hex public key of the identity
func (s *WatchOnlySigner) PublicKey() string {
	return s.pk
}

// SignEvent always fails for a watch-only identity
func (s *WatchOnlySigner) SignEvent(ev *nostr.Event) error {
	return errors.New("watch-only identity cannot sign events")
}

// Encrypt always fails for a watch-only identity
func (s *WatchOnlySigner) Encrypt(peerPubkey, plaintext string) (string, error) {
	return "", ErrNoEncryption
}

// Decrypt always fails for a watch-only identity
func (s *WatchOnlySigner) Decrypt(peerPubkey, ciphertext string) (string, error) {
	return "", ErrNoEncryption
}

// CanEncrypt reports whether the signer can encrypt and decrypt messages
func (s *WatchOnlySigner) CanEncrypt() bool {
	return false
}
