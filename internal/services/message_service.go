package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/gavelstr/gavelstr/internal/models"
	"github.com/gavelstr/gavelstr/internal/store"
	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
)

// ThreadMessage is one entry in a conversation thread: a decrypted direct
// message, or a synthetic entry injected from a bid confirmation
type ThreadMessage struct {
	ID        string                 `json:"id"`
	From      string                 `json:"from"`
	Type      models.MessageType     `json:"type"`
	Text      string                 `json:"text"`
	Payload   *models.MessagePayload `json:"payload,omitempty"`
	CreatedAt int64                  `json:"created_at"`
	IsFromMe  bool                   `json:"is_from_me"`
	System    bool                   `json:"system,omitempty"`
}

// Thread is the ordered conversation with one counterparty
type Thread struct {
	Counterparty string           `json:"counterparty"`
	Messages     []*ThreadMessage `json:"messages"`
	LastActivity int64            `json:"last_activity"`
	LastIncoming int64            `json:"last_incoming"`
	UnreadCount  int              `json:"unread_count"`
}

// ConfirmationNote asks the assembler to inject a bid confirmation as a
// synthetic system message into the named counterparty's thread
type ConfirmationNote struct {
	Counterparty string
	Confirmation *models.BidConfirmation
}

// MessageService builds encrypted conversation threads and sends typed
// direct messages
type MessageService struct {
	pool   *store.Pool
	signer Signer
	now    func() time.Time
}

// NewMessageService creates a new MessageService
func NewMessageService(pool *store.Pool, signer Signer) *MessageService {
	return &MessageService{
		pool:   pool,
		signer: signer,
		now:    time.Now,
	}
}

// CanEncrypt reports whether the identity can encrypt direct messages
func (m *MessageService) CanEncrypt() bool {
	return m.signer.CanEncrypt()
}

// Threads builds every conversation thread involving the current identity.
// lastSeen maps counterparty pubkeys to the newest message timestamp the
// caller has already displayed; it drives the best-effort unread counter.
func (m *MessageService) Threads(ctx context.Context, lastSeen map[string]int64) ([]*Thread, error) {
	if !m.signer.CanEncrypt() {
		return nil, ErrNoEncryption
	}

	events, err := m.queryDirectMessages(ctx)
	if err != nil {
		return nil, err
	}
	return AssembleThreads(m.signer.PublicKey(), m.signer.Decrypt, events, nil, "", lastSeen), nil
}

// AuctionThreads builds the threads scoped to one auction. When the current
// identity is the seller, there is one thread per bidder with the seller's
// bid confirmations injected as system messages; otherwise there is a
// single thread with the seller.
func (m *MessageService) AuctionThreads(ctx context.Context, view *Reconciliation, lastSeen map[string]int64) ([]*Thread, error) {
	if !m.signer.CanEncrypt() {
		return nil, ErrNoEncryption
	}

	me := m.signer.PublicKey()
	participants := make(map[string]bool)
	var notes []ConfirmationNote

	if view.Listing.Seller == me {
		for _, rb := range view.Bids {
			participants[rb.Bid.Bidder] = true
			if rb.Confirmation != nil {
				notes = append(notes, ConfirmationNote{
					Counterparty: rb.Bid.Bidder,
					Confirmation: rb.Confirmation,
				})
			}
		}
	} else {
		participants[view.Listing.Seller] = true
	}

	events, err := m.queryDirectMessages(ctx)
	if err != nil {
		return nil, err
	}

	threads := AssembleThreads(me, m.signer.Decrypt, events, notes, view.Listing.ID, lastSeen)
	scoped := threads[:0]
	for _, thread := range threads {
		if participants[thread.Counterparty] {
			scoped = append(scoped, thread)
		}
	}
	return scoped, nil
}

// SendMessage encrypts a typed payload and publishes it as a direct message
// to the peer
func (m *MessageService) SendMessage(ctx context.Context, peerPubkey string, payload *models.MessagePayload) (*models.MessagePayload, error) {
	if !m.signer.CanEncrypt() {
		return nil, ErrNoEncryption
	}
	if payload.Type == 0 {
		payload.Type = models.MessageGeneral
	}
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.CreatedAt == 0 {
		payload.CreatedAt = m.now().Unix()
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode message payload: %w", err)
	}
	ciphertext, err := m.signer.Encrypt(peerPubkey, string(plaintext))
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}

	ev := &nostr.Event{
		Kind:      models.KindEncryptedDM,
		CreatedAt: nostr.Timestamp(m.now().Unix()),
		Content:   ciphertext,
		Tags:      nostr.Tags{{"p", peerPubkey}},
	}
	if err := m.signer.SignEvent(ev); err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	if err := m.pool.Publish(ctx, ev); err != nil {
		return nil, err
	}
	return payload, nil
}

// queryDirectMessages fetches every direct message sent by or addressed to
// the current identity
func (m *MessageService) queryDirectMessages(ctx context.Context) ([]*nostr.Event, error) {
	me := m.signer.PublicKey()
	return m.pool.Query(ctx,
		nostr.Filter{Kinds: []int{models.KindEncryptedDM}, Authors: []string{me}},
		nostr.Filter{Kinds: []int{models.KindEncryptedDM}, Tags: nostr.TagMap{"p": []string{me}}},
	)
}

// AssembleThreads groups direct messages by counterparty into ordered
// threads. Decryption failures exclude the single affected message, never
// the batch. When scopeAuctionID is set, only payloads tagged to that
// auction are kept. Messages sort ascending by time (ties by event id);
// threads sort by most recent incoming message, newest first.
func AssembleThreads(me string, decrypt func(peerPubkey, ciphertext string) (string, error), events []*nostr.Event, notes []ConfirmationNote, scopeAuctionID string, lastSeen map[string]int64) []*Thread {
	byPeer := make(map[string]*Thread)
	thread := func(peer string) *Thread {
		t, ok := byPeer[peer]
		if !ok {
			t = &Thread{Counterparty: peer}
			byPeer[peer] = t
		}
		return t
	}

	for _, ev := range events {
		if ev.Kind != models.KindEncryptedDM {
			continue
		}

		var peer string
		if ev.PubKey == me {
			peer = models.FirstTagValue(ev, "p")
		} else if models.FirstTagValue(ev, "p") == me {
			peer = ev.PubKey
		}
		if peer == "" {
			continue
		}

		plaintext, err := decrypt(peer, ev.Content)
		if err != nil {
			log.Printf("excluding unreadable message %s: %v", ev.ID, err)
			continue
		}
		payload, err := models.DecodeMessagePayload(plaintext)
		if err != nil {
			log.Printf("excluding malformed message %s: %v", ev.ID, err)
			continue
		}
		if scopeAuctionID != "" && payload.AuctionID != scopeAuctionID {
			continue
		}

		thread(peer).Messages = append(thread(peer).Messages, &ThreadMessage{
			ID:        ev.ID,
			From:      ev.PubKey,
			Type:      payload.Type,
			Text:      payload.Message,
			Payload:   payload,
			CreatedAt: int64(ev.CreatedAt),
			IsFromMe:  ev.PubKey == me,
		})
	}

	for _, note := range notes {
		conf := note.Confirmation
		thread(note.Counterparty).Messages = append(thread(note.Counterparty).Messages, &ThreadMessage{
			ID:        conf.EventID,
			From:      conf.Seller,
			Type:      models.MessageOrderUpdate,
			Text:      fmt.Sprintf("Bid %s", conf.Status),
			CreatedAt: conf.CreatedAt,
			IsFromMe:  conf.Seller == me,
			System:    true,
		})
	}

	threads := make([]*Thread, 0, len(byPeer))
	for _, t := range byPeer {
		sort.Slice(t.Messages, func(i, j int) bool {
			if t.Messages[i].CreatedAt != t.Messages[j].CreatedAt {
				return t.Messages[i].CreatedAt < t.Messages[j].CreatedAt
			}
			return t.Messages[i].ID < t.Messages[j].ID
		})

		seen := lastSeen[t.Counterparty]
		for _, msg := range t.Messages {
			if msg.CreatedAt > t.LastActivity {
				t.LastActivity = msg.CreatedAt
			}
			if !msg.IsFromMe {
				if msg.CreatedAt > t.LastIncoming {
					t.LastIncoming = msg.CreatedAt
				}
				if msg.CreatedAt > seen {
					t.UnreadCount++
				}
			}
		}
		threads = append(threads, t)
	}

	sort.Slice(threads, func(i, j int) bool {
		if threads[i].LastIncoming != threads[j].LastIncoming {
			return threads[i].LastIncoming > threads[j].LastIncoming
		}
		if threads[i].LastActivity != threads[j].LastActivity {
			return threads[i].LastActivity > threads[j].LastActivity
		}
		return threads[i].Counterparty < threads[j].Counterparty
	})
	return threads
}
