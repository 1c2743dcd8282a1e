package models

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// AuctionStatus represents a seller-published terminal status of an auction
type AuctionStatus string

const (
	AuctionStatusCompleted AuctionStatus = "completed"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// ShippingRules describes the shipping options offered by a listing.
// Costs are in the smallest currency unit (satoshis). Pointers distinguish
// "zero cost" from "field missing" during decode.
type ShippingRules struct {
	LocalCost          *int64   `json:"local_cost"`
	LocalCountries     []string `json:"local_countries"`
	InternationalCost  *int64   `json:"international_cost"`
}

// Artist contains the artist metadata attached to a listing
type Artist struct {
	Name    string `json:"name"`
	Bio     string `json:"bio"`
	Website string `json:"website,omitempty"`
}

// AuctionListing represents one item for sale. The wire payload is the
// content of a kind 30020 event; event-level fields (EventID, Seller,
// PublishedAt) are filled in from the carrying event during decode.
type AuctionListing struct {
	ID            string        `json:"id"` // stable application-level UUID, also the "d" tag
	StallID       string        `json:"stall_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Images        []string      `json:"images"`
	StartingBid   int64         `json:"starting_bid"` // in satoshis
	ReservePrice  *int64        `json:"reserve_price,omitempty"`
	StartDate     int64         `json:"start_date"` // unix seconds
	Duration      int64         `json:"duration"`   // seconds
	AutoExtend    bool          `json:"auto_extend"`
	ExtensionTime int64         `json:"extension_time,omitempty"` // seconds
	Shipping      ShippingRules `json:"shipping"`
	Artist        Artist        `json:"artist"`

	EventID     string `json:"-"`
	Seller      string `json:"-"`
	PublishedAt int64  `json:"-"`
}

// StatusUpdate is a seller-published terminal status for an auction (kind 1023)
type StatusUpdate struct {
	AuctionID string        `json:"id"`
	Status    AuctionStatus `json:"status"`
	Message   string        `json:"message,omitempty"`

	EventID     string `json:"-"`
	Seller      string `json:"-"`
	PublishedAt int64  `json:"-"`
}

// DecodeListing decodes a kind 30020 event into an AuctionListing.
// It returns an error on malformed payloads or missing required fields;
// callers drop such events rather than aborting the batch.
func DecodeListing(ev *nostr.Event) (*AuctionListing, error) {
	if ev.Kind != KindAuctionListing {
		return nil, fmt.Errorf("unexpected kind %d for listing", ev.Kind)
	}

	var listing AuctionListing
	if err := json.Unmarshal([]byte(ev.Content), &listing); err != nil {
		return nil, fmt.Errorf("invalid listing payload: %w", err)
	}

	// The "d" tag is authoritative for the stable id on replaceable events
	if d := FirstTagValue(ev, "d"); d != "" {
		listing.ID = d
	}
	if listing.ID == "" {
		return nil, fmt.Errorf("listing has no stable id")
	}
	if listing.Title == "" {
		return nil, fmt.Errorf("listing %s has no title", listing.ID)
	}
	if listing.StartingBid <= 0 {
		return nil, fmt.Errorf("listing %s has non-positive starting bid", listing.ID)
	}
	if listing.StartDate <= 0 {
		return nil, fmt.Errorf("listing %s has no start date", listing.ID)
	}
	if listing.Duration <= 0 {
		return nil, fmt.Errorf("listing %s has no duration", listing.ID)
	}
	if len(listing.Images) == 0 {
		return nil, fmt.Errorf("listing %s has no images", listing.ID)
	}
	if listing.Shipping.LocalCost == nil && listing.Shipping.InternationalCost == nil {
		return nil, fmt.Errorf("listing %s has no shipping costs", listing.ID)
	}

	listing.EventID = ev.ID
	listing.Seller = ev.PubKey
	listing.PublishedAt = int64(ev.CreatedAt)
	return &listing, nil
}

// DecodeStatusUpdate decodes a kind 1023 event into a StatusUpdate
func DecodeStatusUpdate(ev *nostr.Event) (*StatusUpdate, error) {
	if ev.Kind != KindStatusUpdate {
		return nil, fmt.Errorf("unexpected kind %d for status update", ev.Kind)
	}

	var update StatusUpdate
	if err := json.Unmarshal([]byte(ev.Content), &update); err != nil {
		return nil, fmt.Errorf("invalid status payload: %w", err)
	}
	if update.AuctionID == "" {
		update.AuctionID = FirstTagValue(ev, "d")
	}
	if update.AuctionID == "" {
		return nil, fmt.Errorf("status update has no auction id")
	}
	if update.Status != AuctionStatusCompleted && update.Status != AuctionStatusCancelled {
		return nil, fmt.Errorf("status update %s has unknown status %q", update.AuctionID, update.Status)
	}

	update.EventID = ev.ID
	update.Seller = ev.PubKey
	update.PublishedAt = int64(ev.CreatedAt)
	return &update, nil
}

// FirstTagValue returns the value of the first tag with the given name,
// or "" if the event carries no such tag
func FirstTagValue(ev *nostr.Event, name string) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// TagValues returns every value carried by tags with the given name
func TagValues(ev *nostr.Event, name string) []string {
	var values []string
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			values = append(values, tag[1])
		}
	}
	return values
}
