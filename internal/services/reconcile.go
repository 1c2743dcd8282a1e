package services

import (
	"log"
	"sort"

	"github.com/gavelstr/gavelstr/internal/models"
	"github.com/nbd-wtf/go-nostr"
)

// DefaultExtensionWindow is the auto-extend window applied when a listing
// enables auto-extend without specifying an extension time, in seconds.
const DefaultExtensionWindow = 300

// LifecycleState is the derived state of an auction at a given instant
type LifecycleState string

const (
	StateScheduled LifecycleState = "scheduled"
	StateActive    LifecycleState = "active"
	StateExtended  LifecycleState = "extended"
	StateEnded     LifecycleState = "ended"
	StateCompleted LifecycleState = "completed"
	StateCancelled LifecycleState = "cancelled"
)

// RankedBid is a bid annotated with its rank and the seller's latest
// disposition on it
type RankedBid struct {
	Bid          *models.Bid             `json:"bid"`
	Position     int                     `json:"position"`
	Status       models.BidStatus        `json:"status"`
	Confirmation *models.BidConfirmation `json:"confirmation,omitempty"`
}

// Reconciliation is the consistent view of one auction, derived purely from
// the events it was given and a fixed "now". Running it twice over the same
// inputs yields identical output.
type Reconciliation struct {
	Listing       *models.AuctionListing `json:"listing"`
	CurrentPrice  int64                  `json:"current_price"`
	BidCount      int                    `json:"bid_count"`
	Bids          []*RankedBid           `json:"bids"`
	State         LifecycleState         `json:"state"`
	TimeRemaining int64                  `json:"time_remaining"` // seconds until effective end
	EffectiveEnd  int64                  `json:"effective_end"`  // unix seconds
	ReserveMet    bool                   `json:"reserve_met"`
	Winner        *RankedBid             `json:"winner,omitempty"`
}

// SelectListings decodes raw listing events and applies last-write-wins per
// auctionId+author pair. Malformed events are dropped and logged; one
// corrupt event never hides valid ones.
func SelectListings(events []*nostr.Event) []*models.AuctionListing {
	type key struct{ id, seller string }
	latest := make(map[key]*models.AuctionListing)
	var order []key

	for _, ev := range events {
		listing, err := models.DecodeListing(ev)
		if err != nil {
			log.Printf("dropping listing event %s: %v", ev.ID, err)
			continue
		}
		k := key{listing.ID, listing.Seller}
		current, ok := latest[k]
		if !ok {
			latest[k] = listing
			order = append(order, k)
			continue
		}
		if listing.PublishedAt > current.PublishedAt ||
			(listing.PublishedAt == current.PublishedAt && listing.EventID > current.EventID) {
			latest[k] = listing
		}
	}

	listings := make([]*models.AuctionListing, 0, len(latest))
	for _, k := range order {
		listings = append(listings, latest[k])
	}
	return listings
}

// AuthoritativeListings reduces per-author listings to one listing per
// auction id. When more than one author claims the same id, the author
// whose version was published first keeps it (ties broken by pubkey), so a
// later republish cannot take over someone else's auction.
func AuthoritativeListings(listings []*models.AuctionListing) map[string]*models.AuctionListing {
	byID := make(map[string]*models.AuctionListing)
	for _, listing := range listings {
		current, ok := byID[listing.ID]
		if !ok {
			byID[listing.ID] = listing
			continue
		}
		if current.Seller == listing.Seller {
			continue
		}
		if listing.PublishedAt < current.PublishedAt ||
			(listing.PublishedAt == current.PublishedAt && listing.Seller < current.Seller) {
			byID[listing.ID] = listing
		}
	}
	return byID
}

// Reconcile derives the authoritative view of one auction from its raw bid,
// confirmation and status events at the given instant. Events from the
// wrong authors or with malformed payloads are discarded, never fatal.
func Reconcile(listing *models.AuctionListing, bidEvents, confEvents, statusEvents []*nostr.Event, now int64) *Reconciliation {
	bids := decodeBids(listing, bidEvents)
	confs := decodeConfirmations(listing, confEvents)
	status := latestStatus(listing, statusEvents)

	ranked := rankBids(bids, confs)

	currentPrice := listing.StartingBid
	if len(ranked) > 0 {
		currentPrice = ranked[0].Bid.Amount
	}

	effectiveEnd := effectiveEndTime(listing, bids)
	originalEnd := listing.StartDate + listing.Duration

	var state LifecycleState
	switch {
	case status != nil && status.Status == models.AuctionStatusCompleted:
		state = StateCompleted
	case status != nil && status.Status == models.AuctionStatusCancelled:
		state = StateCancelled
	case now < listing.StartDate:
		state = StateScheduled
	case now >= effectiveEnd:
		state = StateEnded
	case effectiveEnd > originalEnd:
		state = StateExtended
	default:
		state = StateActive
	}

	timeRemaining := int64(0)
	if state == StateScheduled || state == StateActive || state == StateExtended {
		timeRemaining = effectiveEnd - now
	}

	var winner *RankedBid
	for _, rb := range ranked {
		if rb.Status == models.BidStatusWinner {
			winner = rb
			break
		}
	}

	return &Reconciliation{
		Listing:       listing,
		CurrentPrice:  currentPrice,
		BidCount:      len(ranked),
		Bids:          ranked,
		State:         state,
		TimeRemaining: timeRemaining,
		EffectiveEnd:  effectiveEnd,
		ReserveMet:    listing.ReservePrice != nil && currentPrice >= *listing.ReservePrice,
		Winner:        winner,
	}
}

// decodeBids keeps the valid bids that reference this listing's event
func decodeBids(listing *models.AuctionListing, events []*nostr.Event) []*models.Bid {
	var bids []*models.Bid
	for _, ev := range events {
		bid, err := models.DecodeBid(ev)
		if err != nil {
			log.Printf("dropping bid event %s: %v", ev.ID, err)
			continue
		}
		if bid.ListingEventID != listing.EventID {
			continue
		}
		bids = append(bids, bid)
	}
	return bids
}

// decodeConfirmations keeps confirmations authored by the listing's seller;
// confirmations from any other author are ignored
func decodeConfirmations(listing *models.AuctionListing, events []*nostr.Event) []*models.BidConfirmation {
	var confs []*models.BidConfirmation
	for _, ev := range events {
		if ev.PubKey != listing.Seller {
			continue
		}
		conf, err := models.DecodeBidConfirmation(ev)
		if err != nil {
			log.Printf("dropping confirmation event %s: %v", ev.ID, err)
			continue
		}
		confs = append(confs, conf)
	}
	return confs
}

// latestStatus returns the most recent seller-authored status update for
// this auction, or nil
func latestStatus(listing *models.AuctionListing, events []*nostr.Event) *models.StatusUpdate {
	var latest *models.StatusUpdate
	for _, ev := range events {
		if ev.PubKey != listing.Seller {
			continue
		}
		update, err := models.DecodeStatusUpdate(ev)
		if err != nil {
			log.Printf("dropping status event %s: %v", ev.ID, err)
			continue
		}
		if update.AuctionID != listing.ID {
			continue
		}
		if latest == nil || update.PublishedAt > latest.PublishedAt ||
			(update.PublishedAt == latest.PublishedAt && update.EventID > latest.EventID) {
			latest = update
		}
	}
	return latest
}

// rankBids orders bids by amount descending, earlier bids first at equal
// amounts, and attaches each bid's effective confirmation status. A later
// confirmation for the same bid supersedes an earlier one.
func rankBids(bids []*models.Bid, confs []*models.BidConfirmation) []*RankedBid {
	ranked := make([]*RankedBid, 0, len(bids))
	for _, bid := range bids {
		rb := &RankedBid{Bid: bid, Status: models.BidStatusPending}
		for _, conf := range confs {
			if !conf.ConfirmsBid(bid.EventID) {
				continue
			}
			if rb.Confirmation == nil || conf.CreatedAt > rb.Confirmation.CreatedAt ||
				(conf.CreatedAt == rb.Confirmation.CreatedAt && conf.EventID > rb.Confirmation.EventID) {
				rb.Confirmation = conf
			}
		}
		if rb.Confirmation != nil {
			rb.Status = rb.Confirmation.Status
		}
		ranked = append(ranked, rb)
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i].Bid, ranked[j].Bid
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.EventID < b.EventID
	})
	for i, rb := range ranked {
		rb.Position = i + 1
	}
	return ranked
}

// effectiveEndTime recomputes the auction end, pushing it back whenever a
// new highest bid lands inside the final extension window of the current
// end. The listing event itself is never mutated; this is a derived value
// re-evaluated against "now" by each caller.
func effectiveEndTime(listing *models.AuctionListing, bids []*models.Bid) int64 {
	end := listing.StartDate + listing.Duration
	if !listing.AutoExtend || len(bids) == 0 {
		return end
	}

	window := listing.ExtensionTime
	if window <= 0 {
		window = DefaultExtensionWindow
	}

	ordered := make([]*models.Bid, len(bids))
	copy(ordered, bids)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt != ordered[j].CreatedAt {
			return ordered[i].CreatedAt < ordered[j].CreatedAt
		}
		return ordered[i].EventID < ordered[j].EventID
	})

	highest := int64(0)
	for _, bid := range ordered {
		if bid.Amount <= highest {
			continue
		}
		highest = bid.Amount
		if bid.CreatedAt >= end-window && bid.CreatedAt < end {
			if extended := bid.CreatedAt + window; extended > end {
				end = extended
			}
		}
	}
	return end
}
