package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNoProvider reports that no Lightning payment provider is configured.
// It is a precondition failure, distinct from provider and network errors.
var ErrNoProvider = errors.New("no lightning payment provider configured")

// LightningProvider is the payment capability consumed by the payment
// flow: invoice creation and payment sending, both requiring a prior
// successful Enable
type LightningProvider interface {
	Enable(ctx context.Context) error
	MakeInvoice(ctx context.Context, amount int64, memo string) (string, error)
	SendPayment(ctx context.Context, invoice string) (string, error)
}

// LNBitsProvider talks to an LNbits-compatible wallet REST API
type LNBitsProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
	enabled  bool
}

// NewLNBitsProvider creates a provider for the given wallet endpoint, or
// nil when no endpoint is configured
func NewLNBitsProvider(endpoint, apiKey string) *LNBitsProvider {
	if endpoint == "" {
		return nil
	}
	return &LNBitsProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Enable verifies the wallet credentials. It must succeed before invoices
// can be created or payments sent.
func (p *LNBitsProvider) Enable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/v1/wallet", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("lightning provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lightning provider rejected credentials: status %d", resp.StatusCode)
	}
	p.enabled = true
	return nil
}

// MakeInvoice creates a bolt11 invoice for the given amount and memo
func (p *LNBitsProvider) MakeInvoice(ctx context.Context, amount int64, memo string) (string, error) {
	if !p.enabled {
		if err := p.Enable(ctx); err != nil {
			return "", err
		}
	}

	body, err := json.Marshal(map[string]any{
		"out":    false,
		"amount": amount,
		"memo":   memo,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		PaymentRequest string `json:"payment_request"`
	}
	if err := p.post(ctx, "/api/v1/payments", body, &result); err != nil {
		return "", err
	}
	if result.PaymentRequest == "" {
		return "", fmt.Errorf("lightning provider returned no invoice")
	}
	return result.PaymentRequest, nil
}

// SendPayment pays a bolt11 invoice and returns the payment hash as the
// settlement receipt
func (p *LNBitsProvider) SendPayment(ctx context.Context, invoice string) (string, error) {
	if !p.enabled {
		if err := p.Enable(ctx); err != nil {
			return "", err
		}
	}

	body, err := json.Marshal(map[string]any{
		"out":    true,
		"bolt11": invoice,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		PaymentHash string `json:"payment_hash"`
	}
	if err := p.post(ctx, "/api/v1/payments", body, &result); err != nil {
		return "", err
	}
	if result.PaymentHash == "" {
		return "", fmt.Errorf("lightning provider returned no payment hash")
	}
	return result.PaymentHash, nil
}

func (p *LNBitsProvider) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("lightning provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("lightning provider error: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
