package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gavelstr/gavelstr/internal/services"
)

// CreateChallenge handles issuing a login challenge
func CreateChallenge(authService *services.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		challenge := authService.GenerateChallenge()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(challenge)
	}
}

// LoginRequest is the signed-challenge login payload
type LoginRequest struct {
	Pubkey      string `json:"pubkey"`
	ChallengeID string `json:"challenge_id"`
	Signature   string `json:"signature"`
}

// Login handles exchanging a signed challenge for a session token
func Login(authService *services.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Pubkey == "" || req.ChallengeID == "" || req.Signature == "" {
			http.Error(w, "Pubkey, challenge id and signature are required", http.StatusBadRequest)
			return
		}

		token, err := authService.Login(req.Pubkey, req.ChallengeID, req.Signature)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	}
}
