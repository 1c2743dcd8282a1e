package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gavelstr/gavelstr/internal/models"
	"github.com/gavelstr/gavelstr/internal/services"
	"github.com/go-chi/chi/v5"
)

// GetAllAuctions handles retrieving the reconciled view of all auctions
func GetAllAuctions(auctionService *services.AuctionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := auctionService.ListAuctions(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if views == nil {
			views = []*services.Reconciliation{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

// GetAuction handles retrieving the reconciled view of a single auction
func GetAuction(auctionService *services.AuctionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID := chi.URLParam(r, "id")
		if auctionID == "" {
			http.Error(w, "Auction ID is required", http.StatusBadRequest)
			return
		}

		view, err := auctionService.GetAuction(r.Context(), auctionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if view == nil {
			http.Error(w, "Auction not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(view)
	}
}

// CreateAuction handles publishing a new auction listing
func CreateAuction(auctionService *services.AuctionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft models.AuctionListing
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		listing, err := auctionService.CreateListing(r.Context(), &draft)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(listing)
	}
}

// PlaceBid handles publishing a bid on an auction
func PlaceBid(auctionService *services.AuctionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID := chi.URLParam(r, "id")
		if auctionID == "" {
			http.Error(w, "Auction ID is required", http.StatusBadRequest)
			return
		}

		var bid models.Bid
		if err := json.NewDecoder(r.Body).Decode(&bid); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		placed, err := auctionService.PlaceBid(r.Context(), auctionID, &bid)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(placed)
	}
}

// ConfirmBid handles publishing the seller's disposition on a bid
func ConfirmBid(auctionService *services.AuctionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID := chi.URLParam(r, "id")
		bidID := chi.URLParam(r, "bidID")
		if auctionID == "" || bidID == "" {
			http.Error(w, "Auction ID and bid ID are required", http.StatusBadRequest)
			return
		}

		var conf models.BidConfirmation
		if err := json.NewDecoder(r.Body).Decode(&conf); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		published, err := auctionService.ConfirmBid(r.Context(), auctionID, bidID, &conf)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(published)
	}
}

// StatusRequest carries a terminal status update for an auction
type StatusRequest struct {
	Status  models.AuctionStatus `json:"status"`
	Message string               `json:"message,omitempty"`
}

// UpdateStatus handles publishing a terminal auction status
func UpdateStatus(auctionService *services.AuctionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID := chi.URLParam(r, "id")
		if auctionID == "" {
			http.Error(w, "Auction ID is required", http.StatusBadRequest)
			return
		}

		var req StatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if err := auctionService.PublishStatus(r.Context(), auctionID, req.Status, req.Message); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// GetComments handles retrieving the public comments on an auction listing
func GetComments(auctionService *services.AuctionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID := chi.URLParam(r, "id")
		if auctionID == "" {
			http.Error(w, "Auction ID is required", http.StatusBadRequest)
			return
		}

		view, err := auctionService.GetAuction(r.Context(), auctionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if view == nil {
			http.Error(w, "Auction not found", http.StatusNotFound)
			return
		}

		comments, err := auctionService.Comments(r.Context(), view.Listing.EventID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if comments == nil {
			comments = []*models.Comment{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(comments)
	}
}

// ReactRequest is a reaction on a published event
type ReactRequest struct {
	EventID string `json:"event_id"`
	Content string `json:"content,omitempty"`
}

// React handles publishing a reaction on an event
func React(auctionService *services.AuctionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.EventID == "" {
			http.Error(w, "Event ID is required", http.StatusBadRequest)
			return
		}

		if err := auctionService.React(r.Context(), req.EventID, req.Content); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// CommentRequest is a public comment submission
type CommentRequest struct {
	Content  string `json:"content"`
	ParentID string `json:"parent_id,omitempty"`
}

// CreateComment handles publishing a public comment on an auction listing
func CreateComment(auctionService *services.AuctionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID := chi.URLParam(r, "id")
		if auctionID == "" {
			http.Error(w, "Auction ID is required", http.StatusBadRequest)
			return
		}

		var req CommentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		view, err := auctionService.GetAuction(r.Context(), auctionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if view == nil {
			http.Error(w, "Auction not found", http.StatusNotFound)
			return
		}

		comment, err := auctionService.PublishComment(r.Context(), view.Listing.EventID, req.ParentID, req.Content)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(comment)
	}
}
