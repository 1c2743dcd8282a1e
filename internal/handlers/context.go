package handlers

import (
	"context"
)

// Context keys
type contextKey string

const (
	// PubkeyKey is the key for the authenticated pubkey in the context
	PubkeyKey contextKey = "pubkey"
)

// NewContextWithPubkey adds an authenticated pubkey to the context
func NewContextWithPubkey(ctx context.Context, pubkey string) context.Context {
	return context.WithValue(ctx, PubkeyKey, pubkey)
}

// PubkeyFromContext extracts the authenticated pubkey from the context
func PubkeyFromContext(ctx context.Context) (string, bool) {
	pubkey, ok := ctx.Value(PubkeyKey).(string)
	return pubkey, ok
}
