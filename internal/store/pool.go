package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// ErrSourceUnavailable reports that no relay could serve a query within its
// timeout. It is distinguishable from an empty result set; callers should
// offer a retry or an alternate source rather than rendering "no events".
var ErrSourceUnavailable = errors.New("event source unavailable")

// Pool fans queries and publishes out to a set of relays. Connections are
// dialed lazily and redialed when lost. Results are merged and deduplicated
// by event id.
type Pool struct {
	urls           []string
	queryTimeout   time.Duration
	publishTimeout time.Duration

	mu     sync.Mutex
	relays map[string]*Relay
}

// NewPool creates a pool over the given relay URLs
func NewPool(urls []string, queryTimeout, publishTimeout time.Duration) *Pool {
	return &Pool{
		urls:           urls,
		queryTimeout:   queryTimeout,
		publishTimeout: publishTimeout,
		relays:         make(map[string]*Relay),
	}
}

// URLs returns the configured relay URLs
func (p *Pool) URLs() []string {
	return append([]string(nil), p.urls...)
}

// Close closes every open relay connection
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.relays {
		r.Close()
	}
	p.relays = make(map[string]*Relay)
}

func (p *Pool) relay(ctx context.Context, url string) (*Relay, error) {
	p.mu.Lock()
	r := p.relays[url]
	p.mu.Unlock()

	if r != nil && !r.Closed() {
		return r, nil
	}

	r, err := DialRelay(ctx, url)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.relays[url] = r
	p.mu.Unlock()
	return r, nil
}

// Query runs the filters against every relay, merges the results and
// dedupes them by event id. It succeeds if at least one relay answered;
// if none did it returns ErrSourceUnavailable (wrapping the first cause).
func (p *Pool) Query(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	if len(p.urls) == 0 {
		return nil, fmt.Errorf("%w: no relays configured", ErrSourceUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	type result struct {
		events []*nostr.Event
		err    error
	}

	results := make(chan result, len(p.urls))
	for _, url := range p.urls {
		go func(url string) {
			r, err := p.relay(ctx, url)
			if err != nil {
				results <- result{err: err}
				return
			}
			events, err := r.QuerySync(ctx, filters...)
			results <- result{events: events, err: err}
		}(url)
	}

	merged := make(map[string]*nostr.Event)
	answered := 0
	var firstErr error
	for range p.urls {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		answered++
		for _, ev := range res.events {
			if _, seen := merged[ev.ID]; !seen {
				merged[ev.ID] = ev
			}
		}
	}

	if answered == 0 {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, firstErr)
	}

	events := make([]*nostr.Event, 0, len(merged))
	for _, ev := range merged {
		events = append(events, ev)
	}
	// deterministic order regardless of relay race outcomes
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt < events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

// Publish broadcasts a signed event to every relay. It succeeds when at
// least one relay accepts the event; republishing is safe since consumers
// dedupe by event id.
func (p *Pool) Publish(ctx context.Context, ev *nostr.Event) error {
	if len(p.urls) == 0 {
		return fmt.Errorf("%w: no relays configured", ErrSourceUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	errs := make(chan error, len(p.urls))
	for _, url := range p.urls {
		go func(url string) {
			r, err := p.relay(ctx, url)
			if err != nil {
				errs <- err
				return
			}
			errs <- r.Publish(ctx, ev)
		}(url)
	}

	accepted := 0
	var firstErr error
	for range p.urls {
		if err := <-errs; err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Printf("publish %s: %v", ev.ID, err)
			continue
		}
		accepted++
	}

	if accepted == 0 {
		return fmt.Errorf("publish failed on all relays: %w", firstErr)
	}
	return nil
}
