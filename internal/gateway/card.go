package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/cinemarwa/backend/internal/config"
)

// CardClient drives the intent-based card gateway. Confirmation is
// client-driven; the backend only creates intents and later learns the
// outcome via webhook or an explicit ConfirmPayment call.
type CardClient struct {
	logger     hclog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewCardClient creates a card gateway client from configuration.
func NewCardClient(logger hclog.Logger, cfg config.GatewaysConfig) *CardClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &CardClient{
		logger:     logger.Named("card-gateway"),
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.CardURL,
		apiKey:     cfg.CardKey,
	}
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreatePaymentIntent registers an intent for amountMinor minor units and
// returns the client secret the front-end uses to confirm the charge.
func (c *CardClient) CreatePaymentIntent(ctx context.Context, amountMinor int64, currency, email, description string, metadata map[string]string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", strings.ToLower(currency))
	if email != "" {
		form.Set("receipt_email", email)
	}
	if description != "" {
		form.Set("description", description)
	}
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	resp, err := c.do(ctx, http.MethodPost, "/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("created payment intent", "intent", resp.ID, "amount_minor", amountMinor)

	return &PaymentIntent{
		IntentID:     resp.ID,
		ClientSecret: resp.ClientSecret,
		Status:       intentStatus(resp.Status),
	}, nil
}

// ConfirmPayment fetches the intent's current state and maps it onto the
// collect status vocabulary used by the reconciler.
func (c *CardClient) ConfirmPayment(ctx context.Context, intentID string) (*CollectResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/payment_intents/"+intentID, nil)
	if err != nil {
		return nil, err
	}

	return &CollectResult{
		ReferenceID:  resp.ID,
		Status:       intentStatus(resp.Status),
		ProviderTxID: resp.ID,
	}, nil
}

func (c *CardClient) do(ctx context.Context, method, path string, body *strings.Reader) (*intentResponse, error) {
	var httpReq *http.Request
	var err error
	if body != nil {
		httpReq, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("card gateway unreachable", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	defer httpResp.Body.Close()

	var resp intentResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrGatewayFailure, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrGatewayFailure, resp.Error.Message)
	}
	if httpResp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrGatewayFailure, httpResp.StatusCode)
	}
	return &resp, nil
}

func intentStatus(s string) Status {
	switch s {
	case "succeeded":
		return StatusSuccessful
	case "canceled":
		return StatusFailed
	default:
		// requires_payment_method, requires_confirmation, processing, ...
		return StatusPending
	}
}
