package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gavelstr/gavelstr/internal/services"
	"github.com/gavelstr/gavelstr/internal/store"
)

// Authenticator guards routes behind a valid session token
func Authenticator(authService *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "Missing authorization token", http.StatusUnauthorized)
				return
			}

			pubkey, err := authService.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, "Invalid authorization token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContextWithPubkey(r.Context(), pubkey)))
		})
	}
}

// writeServiceError maps the error taxonomy onto HTTP statuses: source
// unavailability is recoverable by retry or switching relays, capability
// absence is a precondition failure, everything else is caller input.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSourceUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, services.ErrNoEncryption), errors.Is(err, services.ErrNoProvider):
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
	case errors.Is(err, services.ErrNotSeller):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
