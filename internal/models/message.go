package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType distinguishes the typed payloads carried inside encrypted
// direct messages
type MessageType int

const (
	MessagePaymentRequest MessageType = 1
	MessageOrderUpdate    MessageType = 2
	MessageBidInquiry     MessageType = 3
	MessageShippingUpdate MessageType = 4
	MessageGeneral        MessageType = 5
)

// PaymentOption is one way the buyer can settle a payment request
type PaymentOption struct {
	Type string `json:"type"` // "ln" for a Lightning invoice
	Link string `json:"link"`
}

// MessagePayload is the decrypted payload of a kind 4 direct message.
// The auction tagging lives inside the payload and is not observable
// before decryption.
type MessagePayload struct {
	ID             string          `json:"id"`
	Type           MessageType     `json:"type"`
	Message        string          `json:"message"`
	AuctionID      string          `json:"auction_id,omitempty"`
	AuctionTitle   string          `json:"auction_title,omitempty"`
	BidAmount      int64           `json:"bid_amount,omitempty"`
	PaymentOptions []PaymentOption `json:"payment_options,omitempty"`
	Paid           *bool           `json:"paid,omitempty"`
	Shipped        *bool           `json:"shipped,omitempty"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	CreatedAt      int64           `json:"created_at,omitempty"`
}

// DecodeMessagePayload parses a decrypted direct-message plaintext.
// Plaintext that is not a JSON object is treated as a plain general message
// rather than rejected, since counterparties may use ordinary DM clients.
func DecodeMessagePayload(plaintext string) (*MessagePayload, error) {
	trimmed := strings.TrimSpace(plaintext)
	if !strings.HasPrefix(trimmed, "{") {
		return &MessagePayload{Type: MessageGeneral, Message: plaintext}, nil
	}

	var payload MessagePayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("invalid message payload: %w", err)
	}
	if payload.Type < MessagePaymentRequest || payload.Type > MessageGeneral {
		payload.Type = MessageGeneral
	}
	return &payload, nil
}
