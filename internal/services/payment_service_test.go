package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gavelstr/gavelstr/internal/models"
)

type fakeProvider struct {
	invoice    string
	receipt    string
	invoiceErr error
	sendErr    error
}

func (p *fakeProvider) Enable(ctx context.Context) error { return nil }

func (p *fakeProvider) MakeInvoice(ctx context.Context, amount int64, memo string) (string, error) {
	return p.invoice, p.invoiceErr
}

func (p *fakeProvider) SendPayment(ctx context.Context, invoice string) (string, error) {
	return p.receipt, p.sendErr
}

type fakeMessenger struct {
	canEncrypt bool
	sendErr    error
	sent       []*models.MessagePayload
}

func (m *fakeMessenger) CanEncrypt() bool { return m.canEncrypt }

func (m *fakeMessenger) SendMessage(ctx context.Context, peer string, payload *models.MessagePayload) (*models.MessagePayload, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, payload)
	return payload, nil
}

func TestPaymentFlowHappyPath(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{canEncrypt: true}
	flow := NewPaymentFlow(&fakeProvider{invoice: "lnbc123"}, messenger)
	flow.resetDelay = time.Hour // keep "sent" observable

	if flow.State() != PaymentStateForm {
		t.Fatalf("expected form initially, got %s", flow.State())
	}

	invoice, err := flow.CreateInvoice(context.Background(), 50000, "Sunset in Oils")
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if invoice != "lnbc123" || flow.State() != PaymentStateInvoice {
		t.Fatalf("expected invoice state with lnbc123, got %s %q", flow.State(), invoice)
	}

	if err := flow.Send(context.Background(), "winner", "a1", "Sunset in Oils"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if flow.State() != PaymentStateSent {
		t.Fatalf("expected sent, got %s", flow.State())
	}
	if len(messenger.sent) != 1 || messenger.sent[0].Type != models.MessagePaymentRequest {
		t.Fatalf("expected one payment request message, got %+v", messenger.sent)
	}
	if messenger.sent[0].PaymentOptions[0].Link != "lnbc123" {
		t.Fatalf("invoice missing from payment request: %+v", messenger.sent[0])
	}
}

func TestCreateInvoiceFailureStaysInForm(t *testing.T) {
	t.Parallel()

	flow := NewPaymentFlow(&fakeProvider{invoiceErr: errors.New("wallet offline")}, &fakeMessenger{canEncrypt: true})

	if _, err := flow.CreateInvoice(context.Background(), 1000, "memo"); err == nil {
		t.Fatalf("expected provider error")
	}
	if flow.State() != PaymentStateForm {
		t.Fatalf("expected flow to remain in form after provider failure, got %s", flow.State())
	}

	// the form stays usable: a retry can succeed
	flow.provider = &fakeProvider{invoice: "lnbc456"}
	if _, err := flow.CreateInvoice(context.Background(), 1000, "memo"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestCreateInvoiceValidation(t *testing.T) {
	t.Parallel()

	flow := NewPaymentFlow(&fakeProvider{invoice: "lnbc1"}, &fakeMessenger{canEncrypt: true})

	if _, err := flow.CreateInvoice(context.Background(), 0, "memo"); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	if _, err := flow.CreateInvoice(context.Background(), 100, ""); err == nil {
		t.Fatalf("expected error for empty memo")
	}
	if flow.State() != PaymentStateForm {
		t.Fatalf("validation failures must not advance the flow, got %s", flow.State())
	}
}

func TestCreateInvoiceRequiresProvider(t *testing.T) {
	t.Parallel()

	flow := NewPaymentFlow(nil, &fakeMessenger{canEncrypt: true})
	if _, err := flow.CreateInvoice(context.Background(), 100, "memo"); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestSendRequiresEncryption(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{canEncrypt: false}
	flow := NewPaymentFlow(&fakeProvider{invoice: "lnbc1"}, messenger)
	if _, err := flow.CreateInvoice(context.Background(), 100, "memo"); err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	if err := flow.Send(context.Background(), "winner", "a1", "title"); !errors.Is(err, ErrNoEncryption) {
		t.Fatalf("expected ErrNoEncryption, got %v", err)
	}
	if flow.State() != PaymentStateInvoice {
		t.Fatalf("capability failure must not lose the invoice, got %s", flow.State())
	}
	if len(messenger.sent) != 0 {
		t.Fatalf("no message may be sent without encryption")
	}
}

func TestSendFailureRollsBackToInvoice(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{canEncrypt: true, sendErr: errors.New("relay down")}
	flow := NewPaymentFlow(&fakeProvider{invoice: "lnbc789"}, messenger)
	if _, err := flow.CreateInvoice(context.Background(), 100, "memo"); err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	if err := flow.Send(context.Background(), "winner", "a1", "title"); err == nil {
		t.Fatalf("expected send failure")
	}
	if flow.State() != PaymentStateInvoice {
		t.Fatalf("expected rollback to invoice, got %s", flow.State())
	}
	if flow.Invoice() != "lnbc789" {
		t.Fatalf("rollback lost the generated invoice: %q", flow.Invoice())
	}

	// the preserved invoice can be resent without regenerating
	messenger.sendErr = nil
	if err := flow.Send(context.Background(), "winner", "a1", "title"); err != nil {
		t.Fatalf("resend: %v", err)
	}
}

func TestSendOnlyFromInvoiceState(t *testing.T) {
	t.Parallel()

	flow := NewPaymentFlow(&fakeProvider{invoice: "lnbc1"}, &fakeMessenger{canEncrypt: true})
	if err := flow.Send(context.Background(), "winner", "a1", "title"); err == nil {
		t.Fatalf("expected error sending from form state")
	}
}

func TestSentAutoResets(t *testing.T) {
	t.Parallel()

	flow := NewPaymentFlow(&fakeProvider{invoice: "lnbc1"}, &fakeMessenger{canEncrypt: true})
	flow.resetDelay = 10 * time.Millisecond

	if _, err := flow.CreateInvoice(context.Background(), 100, "memo"); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if err := flow.Send(context.Background(), "winner", "a1", "title"); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for flow.State() != PaymentStateForm {
		if time.Now().After(deadline) {
			t.Fatalf("flow never reset, stuck in %s", flow.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if flow.Invoice() != "" {
		t.Fatalf("reset must clear the invoice, got %q", flow.Invoice())
	}
}

func TestPaySettlesInvoice(t *testing.T) {
	t.Parallel()

	flow := NewPaymentFlow(&fakeProvider{receipt: "hash123"}, &fakeMessenger{canEncrypt: true})
	receipt, err := flow.Pay(context.Background(), "lnbc-incoming")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if receipt != "hash123" {
		t.Fatalf("expected receipt hash123, got %q", receipt)
	}

	noProvider := NewPaymentFlow(nil, &fakeMessenger{canEncrypt: true})
	if _, err := noProvider.Pay(context.Background(), "lnbc-incoming"); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}
