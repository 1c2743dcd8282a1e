package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
)

// testRelay is a minimal in-process relay: it stores published events and
// replays everything it holds in answer to any REQ
type testRelay struct {
	srv *httptest.Server

	mu     sync.Mutex
	events []nostr.Event
}

func newTestRelay(t *testing.T, seed ...nostr.Event) *testRelay {
	t.Helper()
	r := &testRelay{events: seed}
	upgrader := websocket.Upgrader{}

	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			envelope := nostr.ParseMessage(message)
			if envelope == nil {
				continue
			}

			switch env := envelope.(type) {
			case *nostr.EventEnvelope:
				r.mu.Lock()
				r.events = append(r.events, env.Event)
				r.mu.Unlock()
				ok := nostr.OKEnvelope{EventID: env.Event.ID, OK: true}
				if frame, err := ok.MarshalJSON(); err == nil {
					conn.WriteMessage(websocket.TextMessage, frame)
				}

			case *nostr.ReqEnvelope:
				r.mu.Lock()
				stored := append([]nostr.Event(nil), r.events...)
				r.mu.Unlock()
				for _, ev := range stored {
					out := nostr.EventEnvelope{SubscriptionID: &env.SubscriptionID, Event: ev}
					if frame, err := out.MarshalJSON(); err == nil {
						conn.WriteMessage(websocket.TextMessage, frame)
					}
				}
				eose := nostr.EOSEEnvelope(env.SubscriptionID)
				if frame, err := eose.MarshalJSON(); err == nil {
					conn.WriteMessage(websocket.TextMessage, frame)
				}
			}
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *testRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func signedEvent(t *testing.T, content string) nostr.Event {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	ev := nostr.Event{
		Kind:      1,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Content:   content,
		Tags:      nostr.Tags{},
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatalf("sign event: %v", err)
	}
	return ev
}

func TestQueryWithNoRelays(t *testing.T) {
	t.Parallel()

	pool := NewPool(nil, time.Second, time.Second)
	if _, err := pool.Query(context.Background(), nostr.Filter{}); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if err := pool.Publish(context.Background(), &nostr.Event{ID: "x"}); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable on publish, got %v", err)
	}
}

func TestQueryWithUnreachableRelay(t *testing.T) {
	t.Parallel()

	pool := NewPool([]string{"ws://127.0.0.1:1"}, 2*time.Second, 2*time.Second)
	defer pool.Close()

	if _, err := pool.Query(context.Background(), nostr.Filter{}); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestQueryMergesAndDedupes(t *testing.T) {
	t.Parallel()

	shared := signedEvent(t, "on both relays")
	onlyA := signedEvent(t, "only on a")
	onlyB := signedEvent(t, "only on b")

	relayA := newTestRelay(t, shared, onlyA)
	relayB := newTestRelay(t, shared, onlyB)

	pool := NewPool([]string{relayA.url(), relayB.url()}, 5*time.Second, 5*time.Second)
	defer pool.Close()

	events, err := pool.Query(context.Background(), nostr.Filter{Kinds: []int{1}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 deduped events, got %d", len(events))
	}
	seen := make(map[string]int)
	for _, ev := range events {
		seen[ev.ID]++
	}
	if seen[shared.ID] != 1 {
		t.Fatalf("shared event appeared %d times", seen[shared.ID])
	}
}

func TestQuerySurvivesOneDeadRelay(t *testing.T) {
	t.Parallel()

	ev := signedEvent(t, "still reachable")
	alive := newTestRelay(t, ev)

	pool := NewPool([]string{alive.url(), "ws://127.0.0.1:1"}, 5*time.Second, 5*time.Second)
	defer pool.Close()

	events, err := pool.Query(context.Background(), nostr.Filter{Kinds: []int{1}})
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(events) != 1 || events[0].ID != ev.ID {
		t.Fatalf("expected the event from the live relay, got %d events", len(events))
	}
}

func TestPublishRoundtrip(t *testing.T) {
	t.Parallel()

	relay := newTestRelay(t)
	pool := NewPool([]string{relay.url()}, 5*time.Second, 5*time.Second)
	defer pool.Close()

	ev := signedEvent(t, "hello relay")
	if err := pool.Publish(context.Background(), &ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	events, err := pool.Query(context.Background(), nostr.Filter{Kinds: []int{1}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 || events[0].ID != ev.ID {
		t.Fatalf("published event not returned, got %d events", len(events))
	}
}

func TestQueryDropsTamperedEvents(t *testing.T) {
	t.Parallel()

	valid := signedEvent(t, "honest event")
	tampered := signedEvent(t, "original content")
	tampered.Content = "rewritten by the relay"

	relay := newTestRelay(t, valid, tampered)
	pool := NewPool([]string{relay.url()}, 5*time.Second, 5*time.Second)
	defer pool.Close()

	events, err := pool.Query(context.Background(), nostr.Filter{Kinds: []int{1}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 || events[0].ID != valid.ID {
		t.Fatalf("expected only the untampered event, got %d events", len(events))
	}
}
