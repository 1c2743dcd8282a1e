package store

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
)

const (
	// Time allowed to write a message to the relay
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the relay
	pongWait = 60 * time.Second

	// Send pings to the relay with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 10 * time.Second
)

// subscription tracks one open REQ on a relay
type subscription struct {
	id     string
	events chan *nostr.Event
	eose   chan struct{}
	once   sync.Once
}

func (s *subscription) signalEOSE() {
	s.once.Do(func() { close(s.eose) })
}

// Relay is a client connection to a single event relay. Events received on
// subscriptions are signature-checked before delivery; relays are untrusted.
type Relay struct {
	URL  string
	conn *websocket.Conn
	send chan []byte

	mu   sync.Mutex
	subs map[string]*subscription
	oks  map[string]chan bool

	done      chan struct{}
	closeOnce sync.Once
}

// DialRelay connects to a relay and starts its read/write pumps
func DialRelay(ctx context.Context, url string) (*Relay, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	r := &Relay{
		URL:  url,
		conn: conn,
		send: make(chan []byte, 64),
		subs: make(map[string]*subscription),
		oks:  make(map[string]chan bool),
		done: make(chan struct{}),
	}

	go r.writePump()
	go r.readPump()

	return r, nil
}

// Close tears the connection down and releases all subscriptions
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.conn.Close()

		r.mu.Lock()
		for _, sub := range r.subs {
			sub.signalEOSE()
		}
		r.subs = make(map[string]*subscription)
		r.mu.Unlock()
	})
}

// Closed reports whether the connection has been torn down
func (r *Relay) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// readPump pumps messages from the relay connection to subscriptions
func (r *Relay) readPump() {
	defer r.Close()

	r.conn.SetReadDeadline(time.Now().Add(pongWait))
	r.conn.SetPongHandler(func(string) error {
		r.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("relay %s: read error: %v", r.URL, err)
			}
			return
		}

		envelope := nostr.ParseMessage(message)
		if envelope == nil {
			log.Printf("relay %s: unparseable frame", r.URL)
			continue
		}

		switch env := envelope.(type) {
		case *nostr.EventEnvelope:
			if env.SubscriptionID == nil {
				continue
			}
			r.mu.Lock()
			sub := r.subs[*env.SubscriptionID]
			r.mu.Unlock()
			if sub == nil {
				continue
			}
			if ok, err := env.Event.CheckSignature(); err != nil || !ok {
				log.Printf("relay %s: dropping event %s with bad signature", r.URL, env.Event.ID)
				continue
			}
			ev := env.Event
			select {
			case sub.events <- &ev:
			case <-r.done:
				return
			}

		case *nostr.EOSEEnvelope:
			r.mu.Lock()
			sub := r.subs[string(*env)]
			r.mu.Unlock()
			if sub != nil {
				sub.signalEOSE()
			}

		case *nostr.ClosedEnvelope:
			r.mu.Lock()
			sub := r.subs[env.SubscriptionID]
			r.mu.Unlock()
			if sub != nil {
				sub.signalEOSE()
			}

		case *nostr.OKEnvelope:
			r.mu.Lock()
			ch := r.oks[env.EventID]
			delete(r.oks, env.EventID)
			r.mu.Unlock()
			if ch != nil {
				ch <- env.OK
			}

		case *nostr.NoticeEnvelope:
			log.Printf("relay %s: notice: %s", r.URL, string(*env))
		}
	}
}

// writePump pumps queued frames to the relay connection
func (r *Relay) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		r.Close()
	}()

	for {
		select {
		case frame := <-r.send:
			r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := r.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := r.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.done:
			return
		}
	}
}

func (r *Relay) enqueue(frame []byte) error {
	select {
	case r.send <- frame:
		return nil
	case <-r.done:
		return fmt.Errorf("relay %s: connection closed", r.URL)
	}
}

// QuerySync opens a subscription, collects events until EOSE or context
// cancellation, and closes the subscription. Context expiry is a failure,
// never an empty result.
func (r *Relay) QuerySync(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	sub := &subscription{
		id:     uuid.NewString(),
		events: make(chan *nostr.Event, 256),
		eose:   make(chan struct{}),
	}

	r.mu.Lock()
	r.subs[sub.id] = sub
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.subs, sub.id)
		r.mu.Unlock()

		closeEnv := nostr.CloseEnvelope(sub.id)
		if frame, err := closeEnv.MarshalJSON(); err == nil {
			r.enqueue(frame)
		}
	}()

	req := nostr.ReqEnvelope{SubscriptionID: sub.id, Filters: filters}
	frame, err := req.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := r.enqueue(frame); err != nil {
		return nil, err
	}

	var events []*nostr.Event
	for {
		select {
		case ev := <-sub.events:
			events = append(events, ev)
		case <-sub.eose:
			// drain anything delivered before the EOSE was handled
			for {
				select {
				case ev := <-sub.events:
					events = append(events, ev)
				default:
					return events, nil
				}
			}
		case <-r.done:
			return nil, fmt.Errorf("relay %s: connection closed", r.URL)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Publish sends an event to the relay and waits for its OK acknowledgement
func (r *Relay) Publish(ctx context.Context, ev *nostr.Event) error {
	ack := make(chan bool, 1)
	r.mu.Lock()
	r.oks[ev.ID] = ack
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.oks, ev.ID)
		r.mu.Unlock()
	}()

	env := nostr.EventEnvelope{Event: *ev}
	frame, err := env.MarshalJSON()
	if err != nil {
		return err
	}
	if err := r.enqueue(frame); err != nil {
		return err
	}

	select {
	case accepted := <-ack:
		if !accepted {
			return fmt.Errorf("relay %s: event %s rejected", r.URL, ev.ID)
		}
		return nil
	case <-r.done:
		return fmt.Errorf("relay %s: connection closed", r.URL)
	case <-ctx.Done():
		return ctx.Err()
	}
}
