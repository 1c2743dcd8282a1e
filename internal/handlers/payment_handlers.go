package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gavelstr/gavelstr/internal/services"
)

// GetPaymentState handles reading the current payment flow state
func GetPaymentState(flow *services.PaymentFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"state":   string(flow.State()),
			"invoice": flow.Invoice(),
		})
	}
}

// InvoiceRequest asks the payment flow to generate an invoice
type InvoiceRequest struct {
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

// CreateInvoice handles the form -> invoice transition of the payment flow
func CreateInvoice(flow *services.PaymentFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		invoice, err := flow.CreateInvoice(r.Context(), req.Amount, req.Memo)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"invoice": invoice})
	}
}

// SendPaymentRequest asks the flow to deliver the invoice to the winner
type SendPaymentRequest struct {
	Winner       string `json:"winner"`
	AuctionID    string `json:"auction_id"`
	AuctionTitle string `json:"auction_title,omitempty"`
}

// SendPayment handles the invoice -> sending -> sent transition
func SendPayment(flow *services.PaymentFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Winner == "" {
			http.Error(w, "Winner pubkey is required", http.StatusBadRequest)
			return
		}

		if err := flow.Send(r.Context(), req.Winner, req.AuctionID, req.AuctionTitle); err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"state": string(flow.State())})
	}
}

// PayRequest asks the flow to settle an incoming invoice
type PayRequest struct {
	Invoice string `json:"invoice"`
}

// Pay handles settling an incoming payment request (buyer side)
func Pay(flow *services.PaymentFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		receipt, err := flow.Pay(r.Context(), req.Invoice)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"receipt": receipt})
	}
}
