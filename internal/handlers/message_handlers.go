package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gavelstr/gavelstr/internal/models"
	"github.com/gavelstr/gavelstr/internal/services"
)

// GetThreads handles retrieving conversation threads, optionally scoped to
// one auction via the "auction" query parameter
func GetThreads(messageService *services.MessageService, auctionService *services.AuctionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var threads []*services.Thread
		var err error

		if auctionID := r.URL.Query().Get("auction"); auctionID != "" {
			var view *services.Reconciliation
			view, err = auctionService.GetAuction(r.Context(), auctionID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if view == nil {
				http.Error(w, "Auction not found", http.StatusNotFound)
				return
			}
			threads, err = messageService.AuctionThreads(r.Context(), view, nil)
		} else {
			threads, err = messageService.Threads(r.Context(), nil)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if threads == nil {
			threads = []*services.Thread{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(threads)
	}
}

// SendMessageRequest is an outgoing direct message
type SendMessageRequest struct {
	To      string                `json:"to"`
	Payload models.MessagePayload `json:"payload"`
}

// SendMessage handles encrypting and publishing a direct message
func SendMessage(messageService *services.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.To == "" {
			http.Error(w, "Recipient pubkey is required", http.StatusBadRequest)
			return
		}

		payload, err := messageService.SendMessage(r.Context(), req.To, &req.Payload)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(payload)
	}
}
