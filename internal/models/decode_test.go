package models

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func validListingContent() string {
	return `{
		"id": "a4d1f9c2",
		"stall_id": "stall-1",
		"title": "Sunset in Oils",
		"description": "Original oil on canvas",
		"images": ["https://example.com/sunset.jpg"],
		"starting_bid": 50000,
		"start_date": 1700000000,
		"duration": 86400,
		"auto_extend": true,
		"extension_time": 300,
		"shipping": {"local_cost": 1000, "local_countries": ["US"], "international_cost": 5000},
		"artist": {"name": "Jane Doe", "bio": "Painter"}
	}`
}

func TestDecodeListing(t *testing.T) {
	t.Parallel()

	ev := &nostr.Event{
		ID:        "ev1",
		PubKey:    "seller",
		Kind:      KindAuctionListing,
		CreatedAt: 1700000000,
		Content:   validListingContent(),
		Tags:      nostr.Tags{{"d", "a4d1f9c2"}},
	}

	listing, err := DecodeListing(ev)
	if err != nil {
		t.Fatalf("expected valid listing, got %v", err)
	}
	if listing.ID != "a4d1f9c2" {
		t.Fatalf("expected id from d tag, got %q", listing.ID)
	}
	if listing.Seller != "seller" || listing.EventID != "ev1" {
		t.Fatalf("expected event fields to be filled in, got %+v", listing)
	}
	if listing.Shipping.LocalCost == nil || *listing.Shipping.LocalCost != 1000 {
		t.Fatalf("expected local shipping cost 1000, got %+v", listing.Shipping)
	}
}

func TestDecodeListingRejectsMissingFields(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"garbage":     `not json at all`,
		"no title":    `{"id":"x","images":["i"],"starting_bid":1,"start_date":1,"duration":1,"shipping":{"local_cost":0}}`,
		"no images":   `{"id":"x","title":"t","starting_bid":1,"start_date":1,"duration":1,"shipping":{"local_cost":0}}`,
		"zero bid":    `{"id":"x","title":"t","images":["i"],"starting_bid":0,"start_date":1,"duration":1,"shipping":{"local_cost":0}}`,
		"no shipping": `{"id":"x","title":"t","images":["i"],"starting_bid":1,"start_date":1,"duration":1}`,
	}

	for name, content := range cases {
		ev := &nostr.Event{Kind: KindAuctionListing, Content: content, Tags: nostr.Tags{{"d", "x"}}}
		if _, err := DecodeListing(ev); err == nil {
			t.Fatalf("case %q: expected decode error", name)
		}
	}
}

func TestDecodeBidObjectAndBareAmount(t *testing.T) {
	t.Parallel()

	obj := &nostr.Event{
		ID:        "bid1",
		PubKey:    "buyer",
		Kind:      KindBid,
		CreatedAt: 100,
		Content:   `{"amount": 70000, "shipping_option": "local", "buyer_country": "US"}`,
		Tags:      nostr.Tags{{"e", "listing-ev"}},
	}
	bid, err := DecodeBid(obj)
	if err != nil {
		t.Fatalf("expected valid bid, got %v", err)
	}
	if bid.Amount != 70000 || bid.ListingEventID != "listing-ev" {
		t.Fatalf("unexpected bid %+v", bid)
	}

	bare := &nostr.Event{
		ID:      "bid2",
		Kind:    KindBid,
		Content: "  65000 ",
		Tags:    nostr.Tags{{"e", "listing-ev"}},
	}
	bid, err = DecodeBid(bare)
	if err != nil {
		t.Fatalf("expected valid bare-amount bid, got %v", err)
	}
	if bid.Amount != 65000 {
		t.Fatalf("expected amount 65000, got %d", bid.Amount)
	}
}

func TestDecodeBidRejectsInvalid(t *testing.T) {
	t.Parallel()

	noRef := &nostr.Event{Kind: KindBid, Content: "100"}
	if _, err := DecodeBid(noRef); err == nil {
		t.Fatalf("expected error for bid without listing reference")
	}

	negative := &nostr.Event{Kind: KindBid, Content: `{"amount": -5}`, Tags: nostr.Tags{{"e", "l"}}}
	if _, err := DecodeBid(negative); err == nil {
		t.Fatalf("expected error for non-positive amount")
	}

	garbage := &nostr.Event{Kind: KindBid, Content: "lots of sats", Tags: nostr.Tags{{"e", "l"}}}
	if _, err := DecodeBid(garbage); err == nil {
		t.Fatalf("expected error for non-numeric amount")
	}
}

func TestDecodeBidConfirmation(t *testing.T) {
	t.Parallel()

	ev := &nostr.Event{
		ID:        "conf1",
		PubKey:    "seller",
		Kind:      KindBidConfirmation,
		CreatedAt: 200,
		Content:   `{"status": "accepted", "message": "looks good"}`,
		Tags:      nostr.Tags{{"e", "bid1"}, {"e", "listing-ev"}},
	}
	conf, err := DecodeBidConfirmation(ev)
	if err != nil {
		t.Fatalf("expected valid confirmation, got %v", err)
	}
	if conf.Status != BidStatusAccepted {
		t.Fatalf("expected accepted, got %q", conf.Status)
	}
	if !conf.ConfirmsBid("bid1") || conf.ConfirmsBid("other") {
		t.Fatalf("unexpected bid references %v", conf.Refs)
	}

	bad := &nostr.Event{Kind: KindBidConfirmation, Content: `{"status":"maybe"}`, Tags: nostr.Tags{{"e", "bid1"}}}
	if _, err := DecodeBidConfirmation(bad); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestDecodeMessagePayload(t *testing.T) {
	t.Parallel()

	payload, err := DecodeMessagePayload(`{"id":"m1","type":1,"message":"pay up","auction_id":"a1"}`)
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	if payload.Type != MessagePaymentRequest || payload.AuctionID != "a1" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	plain, err := DecodeMessagePayload("hey, is the painting still available?")
	if err != nil {
		t.Fatalf("expected plain text fallback, got %v", err)
	}
	if plain.Type != MessageGeneral || plain.Message == "" {
		t.Fatalf("expected general message, got %+v", plain)
	}

	if _, err := DecodeMessagePayload(`{"type": "broken"`); err == nil {
		t.Fatalf("expected error for malformed JSON object")
	}
}

func TestDecodeComment(t *testing.T) {
	t.Parallel()

	ev := &nostr.Event{
		ID:        "c1",
		PubKey:    "commenter",
		Kind:      KindComment,
		CreatedAt: 300,
		Content:   "stunning work",
		Tags:      nostr.Tags{{"E", "listing-ev"}, {"e", "parent-comment"}},
	}
	comment, err := DecodeComment(ev)
	if err != nil {
		t.Fatalf("expected valid comment, got %v", err)
	}
	if comment.RootID != "listing-ev" || comment.ParentID != "parent-comment" {
		t.Fatalf("unexpected comment threading %+v", comment)
	}

	empty := &nostr.Event{Kind: KindComment, Tags: nostr.Tags{{"E", "root"}}}
	if _, err := DecodeComment(empty); err == nil {
		t.Fatalf("expected error for empty comment")
	}
}
