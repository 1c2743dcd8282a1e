package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gavelstr/gavelstr/internal/models"
)

// PaymentState is one of the explicit states of the payment handoff flow
type PaymentState string

const (
	PaymentStateForm    PaymentState = "form"
	PaymentStateInvoice PaymentState = "invoice"
	PaymentStateSending PaymentState = "sending"
	PaymentStateSent    PaymentState = "sent"
)

// defaultResetDelay is how long the flow lingers in "sent" before returning
// to a cleared form for reuse
const defaultResetDelay = 3 * time.Second

// PaymentMessenger is the encrypted-messaging channel the payment flow
// delivers payment requests through
type PaymentMessenger interface {
	CanEncrypt() bool
	SendMessage(ctx context.Context, peerPubkey string, payload *models.MessagePayload) (*models.MessagePayload, error)
}

// PaymentFlow drives the seller-to-winner payment handoff as a strict
// linear flow: form -> invoice -> sending -> sent. Transitions are gated by
// validation and single-flight; no concurrent transitions are permitted.
type PaymentFlow struct {
	provider LightningProvider
	messages PaymentMessenger

	mu         sync.Mutex
	state      PaymentState
	amount     int64
	memo       string
	invoice    string
	resetDelay time.Duration
	resetTimer *time.Timer
}

// NewPaymentFlow creates a flow bound to a provider and the messaging
// channel used to deliver payment requests
func NewPaymentFlow(provider LightningProvider, messages PaymentMessenger) *PaymentFlow {
	return &PaymentFlow{
		provider:   provider,
		messages:   messages,
		state:      PaymentStateForm,
		resetDelay: defaultResetDelay,
	}
}

// State returns the current flow state
func (f *PaymentFlow) State() PaymentState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Invoice returns the generated invoice, if the flow holds one
func (f *PaymentFlow) Invoice() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invoice
}

// CreateInvoice moves the flow from form to invoice. On provider failure
// the flow remains in form and the error is surfaced.
func (f *PaymentFlow) CreateInvoice(ctx context.Context, amount int64, memo string) (string, error) {
	f.mu.Lock()
	if f.state != PaymentStateForm {
		f.mu.Unlock()
		return "", fmt.Errorf("cannot create an invoice from state %q", f.state)
	}
	if amount <= 0 {
		f.mu.Unlock()
		return "", fmt.Errorf("amount must be a positive amount")
	}
	if memo == "" {
		f.mu.Unlock()
		return "", fmt.Errorf("description must not be empty")
	}
	if f.provider == nil {
		f.mu.Unlock()
		return "", ErrNoProvider
	}
	f.mu.Unlock()

	invoice, err := f.provider.MakeInvoice(ctx, amount, memo)
	if err != nil {
		return "", fmt.Errorf("create invoice: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != PaymentStateForm {
		return "", fmt.Errorf("cannot create an invoice from state %q", f.state)
	}
	f.state = PaymentStateInvoice
	f.amount = amount
	f.memo = memo
	f.invoice = invoice
	return invoice, nil
}

// Send moves the flow through sending to sent by delivering the invoice as
// an encrypted payment request to the winner. On send failure the flow
// rolls back to invoice (not form) so the generated invoice is preserved
// and a resend is cheap.
func (f *PaymentFlow) Send(ctx context.Context, winnerPubkey, auctionID, auctionTitle string) error {
	f.mu.Lock()
	if f.state != PaymentStateInvoice {
		f.mu.Unlock()
		return fmt.Errorf("cannot send from state %q", f.state)
	}
	// encryption capability is a hard precondition, checked before any
	// network call and reported distinctly from provider failures
	if !f.messages.CanEncrypt() {
		f.mu.Unlock()
		return ErrNoEncryption
	}
	f.state = PaymentStateSending
	amount := f.amount
	memo := f.memo
	invoice := f.invoice
	f.mu.Unlock()

	paid := false
	shipped := false
	payload := &models.MessagePayload{
		Type:         models.MessagePaymentRequest,
		Message:      memo,
		AuctionID:    auctionID,
		AuctionTitle: auctionTitle,
		BidAmount:    amount,
		PaymentOptions: []models.PaymentOption{
			{Type: "ln", Link: invoice},
		},
		Paid:    &paid,
		Shipped: &shipped,
	}

	_, err := f.messages.SendMessage(ctx, winnerPubkey, payload)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = PaymentStateInvoice
		return fmt.Errorf("send payment request: %w", err)
	}

	f.state = PaymentStateSent
	f.resetTimer = time.AfterFunc(f.resetDelay, f.Reset)
	return nil
}

// Reset returns the flow to a cleared form
func (f *PaymentFlow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetTimer != nil {
		f.resetTimer.Stop()
		f.resetTimer = nil
	}
	f.state = PaymentStateForm
	f.amount = 0
	f.memo = ""
	f.invoice = ""
}

// Pay settles an incoming payment request through the provider, for the
// buyer side of the handoff
func (f *PaymentFlow) Pay(ctx context.Context, invoice string) (string, error) {
	if f.provider == nil {
		return "", ErrNoProvider
	}
	if invoice == "" {
		return "", fmt.Errorf("no invoice to pay")
	}
	receipt, err := f.provider.SendPayment(ctx, invoice)
	if err != nil {
		return "", fmt.Errorf("send payment: %w", err)
	}
	return receipt, nil
}
