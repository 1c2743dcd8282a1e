package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// BidStatus represents the seller's disposition on a bid
type BidStatus string

const (
	BidStatusPending  BidStatus = "pending"
	BidStatusAccepted BidStatus = "accepted"
	BidStatusRejected BidStatus = "rejected"
	BidStatusWinner   BidStatus = "winner"
)

// ShippingOption selects between the listing's shipping rules
type ShippingOption string

const (
	ShippingLocal         ShippingOption = "local"
	ShippingInternational ShippingOption = "international"
)

// Bid is a signed claim of willingness to pay, referencing a listing by
// the listing's underlying event id. Bids are immutable historical facts;
// ranking simply ignores lower ones.
type Bid struct {
	Amount         int64          `json:"amount"` // in satoshis
	ShippingOption ShippingOption `json:"shipping_option,omitempty"`
	BuyerCountry   string         `json:"buyer_country,omitempty"`
	Message        string         `json:"message,omitempty"`

	EventID        string `json:"-"`
	Bidder         string `json:"-"`
	ListingEventID string `json:"-"`
	CreatedAt      int64  `json:"-"`
}

// BidConfirmation is the seller's disposition on a specific bid (kind 1022).
// Only confirmations authored by the listing's seller are honored; that is
// enforced during reconciliation, not by the protocol.
type BidConfirmation struct {
	Status           BidStatus `json:"status"`
	Message          string    `json:"message,omitempty"`
	DurationExtended int64     `json:"duration_extended,omitempty"` // seconds
	TotalCost        int64     `json:"total_cost,omitempty"`

	EventID   string   `json:"-"`
	Seller    string   `json:"-"`
	Refs      []string `json:"-"` // referenced event ids (bid and listing)
	CreatedAt int64    `json:"-"`
}

// DecodeBid decodes a kind 1021 event into a Bid. The content is either a
// JSON object or a bare integer amount; a bid is valid only if its amount
// is a positive number and it references a listing event.
func DecodeBid(ev *nostr.Event) (*Bid, error) {
	if ev.Kind != KindBid {
		return nil, fmt.Errorf("unexpected kind %d for bid", ev.Kind)
	}

	listingID := FirstTagValue(ev, "e")
	if listingID == "" {
		return nil, fmt.Errorf("bid %s references no listing", ev.ID)
	}

	var bid Bid
	content := strings.TrimSpace(ev.Content)
	if strings.HasPrefix(content, "{") {
		if err := json.Unmarshal([]byte(content), &bid); err != nil {
			return nil, fmt.Errorf("invalid bid payload: %w", err)
		}
	} else {
		amount, err := strconv.ParseInt(content, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bid amount %q: %w", content, err)
		}
		bid.Amount = amount
	}

	if bid.Amount <= 0 {
		return nil, fmt.Errorf("bid %s has non-positive amount %d", ev.ID, bid.Amount)
	}

	bid.EventID = ev.ID
	bid.Bidder = ev.PubKey
	bid.ListingEventID = listingID
	bid.CreatedAt = int64(ev.CreatedAt)
	return &bid, nil
}

// DecodeBidConfirmation decodes a kind 1022 event into a BidConfirmation
func DecodeBidConfirmation(ev *nostr.Event) (*BidConfirmation, error) {
	if ev.Kind != KindBidConfirmation {
		return nil, fmt.Errorf("unexpected kind %d for bid confirmation", ev.Kind)
	}

	var conf BidConfirmation
	if err := json.Unmarshal([]byte(ev.Content), &conf); err != nil {
		return nil, fmt.Errorf("invalid confirmation payload: %w", err)
	}
	switch conf.Status {
	case BidStatusPending, BidStatusAccepted, BidStatusRejected, BidStatusWinner:
	default:
		return nil, fmt.Errorf("confirmation %s has unknown status %q", ev.ID, conf.Status)
	}

	conf.Refs = TagValues(ev, "e")
	if len(conf.Refs) == 0 {
		return nil, fmt.Errorf("confirmation %s references no bid", ev.ID)
	}

	conf.EventID = ev.ID
	conf.Seller = ev.PubKey
	conf.CreatedAt = int64(ev.CreatedAt)
	return &conf, nil
}

// ConfirmsBid reports whether this confirmation references the given bid event
func (c *BidConfirmation) ConfirmsBid(bidEventID string) bool {
	for _, ref := range c.Refs {
		if ref == bidEventID {
			return true
		}
	}
	return false
}
