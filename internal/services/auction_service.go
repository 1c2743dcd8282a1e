package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gavelstr/gavelstr/internal/models"
	"github.com/gavelstr/gavelstr/internal/store"
	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
)

// ErrNotSeller reports an operation reserved for the listing's seller
var ErrNotSeller = errors.New("operation requires the listing's seller")

const listingQueryLimit = 200

// AuctionService reconciles auction state from relay events and publishes
// listing, bid, confirmation and status events
type AuctionService struct {
	pool   *store.Pool
	signer Signer
	now    func() time.Time
}

// NewAuctionService creates a new AuctionService
func NewAuctionService(pool *store.Pool, signer Signer) *AuctionService {
	return &AuctionService{
		pool:   pool,
		signer: signer,
		now:    time.Now,
	}
}

// GetAuction returns the reconciled view of one auction, or nil when no
// valid listing with that id exists
func (s *AuctionService) GetAuction(ctx context.Context, auctionID string) (*Reconciliation, error) {
	events, err := s.pool.Query(ctx, nostr.Filter{
		Kinds: []int{models.KindAuctionListing},
		Tags:  nostr.TagMap{"d": []string{auctionID}},
	})
	if err != nil {
		return nil, err
	}

	listing := AuthoritativeListings(SelectListings(events))[auctionID]
	if listing == nil {
		return nil, nil
	}

	views, err := s.reconcileAll(ctx, []*models.AuctionListing{listing})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListAuctions returns the reconciled view of every auction visible on the
// configured relays
func (s *AuctionService) ListAuctions(ctx context.Context) ([]*Reconciliation, error) {
	events, err := s.pool.Query(ctx, nostr.Filter{
		Kinds: []int{models.KindAuctionListing},
		Limit: listingQueryLimit,
	})
	if err != nil {
		return nil, err
	}

	byID := AuthoritativeListings(SelectListings(events))
	listings := make([]*models.AuctionListing, 0, len(byID))
	for _, listing := range byID {
		listings = append(listings, listing)
	}
	if len(listings) == 0 {
		return nil, nil
	}
	return s.reconcileAll(ctx, listings)
}

// reconcileAll fetches bids, confirmations and status updates for a batch
// of listings in three queries and reconciles each listing
func (s *AuctionService) reconcileAll(ctx context.Context, listings []*models.AuctionListing) ([]*Reconciliation, error) {
	listingIDs := make([]string, 0, len(listings))
	sellerSet := make(map[string]bool)
	for _, listing := range listings {
		listingIDs = append(listingIDs, listing.EventID)
		sellerSet[listing.Seller] = true
	}
	sellers := make([]string, 0, len(sellerSet))
	for seller := range sellerSet {
		sellers = append(sellers, seller)
	}

	bidEvents, err := s.pool.Query(ctx, nostr.Filter{
		Kinds: []int{models.KindBid},
		Tags:  nostr.TagMap{"e": listingIDs},
	})
	if err != nil {
		return nil, err
	}

	// confirmations tag the bid event; query by seller and correlate in code
	confEvents, err := s.pool.Query(ctx, nostr.Filter{
		Kinds:   []int{models.KindBidConfirmation},
		Authors: sellers,
	})
	if err != nil {
		return nil, err
	}

	statusEvents, err := s.pool.Query(ctx, nostr.Filter{
		Kinds:   []int{models.KindStatusUpdate},
		Authors: sellers,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().Unix()
	views := make([]*Reconciliation, 0, len(listings))
	for _, listing := range listings {
		views = append(views, Reconcile(listing, bidEvents, confEvents, statusEvents, now))
	}
	return views, nil
}

// CreateListing validates a draft, assigns it a stable id and publishes it
// as a replaceable listing event. Republishing with the same id supersedes
// the previous version.
func (s *AuctionService) CreateListing(ctx context.Context, draft *models.AuctionListing) (*models.AuctionListing, error) {
	if draft.Title == "" {
		return nil, fmt.Errorf("listing requires a title")
	}
	if draft.StartingBid <= 0 {
		return nil, fmt.Errorf("starting bid must be a positive amount")
	}
	if len(draft.Images) == 0 {
		return nil, fmt.Errorf("listing requires at least one image")
	}
	if draft.Duration <= 0 {
		return nil, fmt.Errorf("listing requires a positive duration")
	}
	if draft.Shipping.LocalCost == nil && draft.Shipping.InternationalCost == nil {
		return nil, fmt.Errorf("listing requires shipping costs")
	}
	if draft.StartDate <= 0 {
		draft.StartDate = s.now().Unix()
	}
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}

	ev, err := s.publish(ctx, models.KindAuctionListing, draft, nostr.Tags{{"d", draft.ID}})
	if err != nil {
		return nil, err
	}

	draft.EventID = ev.ID
	draft.Seller = ev.PubKey
	draft.PublishedAt = int64(ev.CreatedAt)
	return draft, nil
}

// PlaceBid validates a bid against the reconciled auction state and
// publishes it. Rejections carry a human-readable reason and happen before
// anything reaches the relays.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID string, bid *models.Bid) (*models.Bid, error) {
	if bid.Amount <= 0 {
		return nil, fmt.Errorf("bid amount must be a positive amount")
	}

	view, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, fmt.Errorf("auction not found")
	}

	switch view.State {
	case StateScheduled:
		return nil, fmt.Errorf("auction has not started yet")
	case StateEnded, StateCompleted, StateCancelled:
		return nil, fmt.Errorf("auction has ended")
	}

	if bid.Amount < view.Listing.StartingBid {
		return nil, fmt.Errorf("bid amount must be at least the starting bid")
	}
	if view.BidCount > 0 && bid.Amount <= view.CurrentPrice {
		return nil, fmt.Errorf("bid amount must be higher than the current bid")
	}

	tags := nostr.Tags{
		{"e", view.Listing.EventID},
		{"p", view.Listing.Seller},
	}
	ev, err := s.publish(ctx, models.KindBid, bid, tags)
	if err != nil {
		return nil, err
	}

	bid.EventID = ev.ID
	bid.Bidder = ev.PubKey
	bid.ListingEventID = view.Listing.EventID
	bid.CreatedAt = int64(ev.CreatedAt)
	return bid, nil
}

// ConfirmBid publishes the seller's disposition on a bid. A later
// confirmation for the same bid supersedes an earlier one.
func (s *AuctionService) ConfirmBid(ctx context.Context, auctionID, bidEventID string, conf *models.BidConfirmation) (*models.BidConfirmation, error) {
	view, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, fmt.Errorf("auction not found")
	}
	if view.Listing.Seller != s.signer.PublicKey() {
		return nil, ErrNotSeller
	}

	var target *RankedBid
	for _, rb := range view.Bids {
		if rb.Bid.EventID == bidEventID {
			target = rb
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("bid not found on auction")
	}

	switch conf.Status {
	case models.BidStatusPending, models.BidStatusAccepted, models.BidStatusRejected, models.BidStatusWinner:
	default:
		return nil, fmt.Errorf("unknown confirmation status %q", conf.Status)
	}

	tags := nostr.Tags{
		{"e", bidEventID},
		{"e", view.Listing.EventID},
		{"p", target.Bid.Bidder},
	}
	ev, err := s.publish(ctx, models.KindBidConfirmation, conf, tags)
	if err != nil {
		return nil, err
	}

	conf.EventID = ev.ID
	conf.Seller = ev.PubKey
	conf.Refs = []string{bidEventID, view.Listing.EventID}
	conf.CreatedAt = int64(ev.CreatedAt)
	return conf, nil
}

// PublishStatus publishes a terminal seller status (completed or cancelled)
// for an auction
func (s *AuctionService) PublishStatus(ctx context.Context, auctionID string, status models.AuctionStatus, message string) error {
	if status != models.AuctionStatusCompleted && status != models.AuctionStatusCancelled {
		return fmt.Errorf("unknown auction status %q", status)
	}

	view, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if view == nil {
		return fmt.Errorf("auction not found")
	}
	if view.Listing.Seller != s.signer.PublicKey() {
		return ErrNotSeller
	}

	update := &models.StatusUpdate{AuctionID: auctionID, Status: status, Message: message}
	tags := nostr.Tags{
		{"d", auctionID},
		{"e", view.Listing.EventID},
	}
	_, err = s.publish(ctx, models.KindStatusUpdate, update, tags)
	return err
}

// PublishComment publishes a public comment on a listing event, optionally
// threaded under a parent comment
func (s *AuctionService) PublishComment(ctx context.Context, listingEventID, parentID, content string) (*models.Comment, error) {
	if content == "" {
		return nil, fmt.Errorf("comment requires content")
	}
	tags := nostr.Tags{{"E", listingEventID}}
	if parentID != "" {
		tags = append(tags, nostr.Tag{"e", parentID})
	}

	ev := &nostr.Event{
		Kind:      models.KindComment,
		CreatedAt: nostr.Timestamp(s.now().Unix()),
		Content:   content,
		Tags:      tags,
	}
	if err := s.signer.SignEvent(ev); err != nil {
		return nil, fmt.Errorf("sign comment: %w", err)
	}
	if err := s.pool.Publish(ctx, ev); err != nil {
		return nil, err
	}
	return models.DecodeComment(ev)
}

// Comments returns the public comments on a listing event, oldest first
func (s *AuctionService) Comments(ctx context.Context, listingEventID string) ([]*models.Comment, error) {
	events, err := s.pool.Query(ctx,
		nostr.Filter{Kinds: []int{models.KindComment}, Tags: nostr.TagMap{"E": []string{listingEventID}}},
		nostr.Filter{Kinds: []int{models.KindComment}, Tags: nostr.TagMap{"e": []string{listingEventID}}},
	)
	if err != nil {
		return nil, err
	}

	var comments []*models.Comment
	for _, ev := range events {
		comment, err := models.DecodeComment(ev)
		if err != nil {
			continue
		}
		if comment.RootID != listingEventID {
			continue
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// React publishes a like/reaction on an event
func (s *AuctionService) React(ctx context.Context, eventID, content string) error {
	if content == "" {
		content = "+"
	}
	ev := &nostr.Event{
		Kind:      models.KindReaction,
		CreatedAt: nostr.Timestamp(s.now().Unix()),
		Content:   content,
		Tags:      nostr.Tags{{"e", eventID}},
	}
	if err := s.signer.SignEvent(ev); err != nil {
		return fmt.Errorf("sign reaction: %w", err)
	}
	return s.pool.Publish(ctx, ev)
}

// publish marshals a payload into a signed event and broadcasts it
func (s *AuctionService) publish(ctx context.Context, kind int, payload any, tags nostr.Tags) (*nostr.Event, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	ev := &nostr.Event{
		Kind:      kind,
		CreatedAt: nostr.Timestamp(s.now().Unix()),
		Content:   string(content),
		Tags:      tags,
	}
	if err := s.signer.SignEvent(ev); err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}
	if err := s.pool.Publish(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
