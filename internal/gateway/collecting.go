package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/cinemarwa/backend/internal/config"
)

// CollectingClient talks to the mobile-money collecting gateway over HTTP.
type CollectingClient struct {
	logger     hclog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewCollectingClient creates a collecting gateway client from configuration.
func NewCollectingClient(logger hclog.Logger, cfg config.GatewaysConfig) *CollectingClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &CollectingClient{
		logger:     logger.Named("collecting-gateway"),
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.CollectingURL,
		apiKey:     cfg.CollectingKey,
	}
}

type collectRequest struct {
	Amount        int64               `json:"amount"`
	Tel           string              `json:"tel"`
	Description   string              `json:"description"`
	ReferenceID   string              `json:"referenceId"`
	PayoutNumbers []payoutNumberEntry `json:"payoutNumbers,omitempty"`
}

type payoutNumberEntry struct {
	Tel        string `json:"tel"`
	Percentage int64  `json:"percentage"`
}

type collectResponse struct {
	ReferenceID     string `json:"referenceId"`
	Message         string `json:"message"`
	GatewayResponse struct {
		Data struct {
			Status        string `json:"status"`
			TransactionID string `json:"transaction_id"`
		} `json:"data"`
	} `json:"gateway_response"`
}

// RequestToPay asks the gateway to collect amountRWF from the payer. When
// payoutNumbers is supplied the gateway performs the split on settlement;
// otherwise the caller disburses separately. Phone numbers are normalised
// and the description sanitised before anything leaves the process.
func (c *CollectingClient) RequestToPay(ctx context.Context, amountRWF int64, payerPhone, referenceID, description string, payoutNumbers []PayoutNumber) (*CollectResult, error) {
	tel, err := NormalizePhone(payerPhone)
	if err != nil {
		return nil, fmt.Errorf("payer phone %q: %w", payerPhone, err)
	}

	req := collectRequest{
		Amount:      amountRWF,
		Tel:         tel,
		Description: SanitizeDescription(description),
		ReferenceID: referenceID,
	}

	if len(payoutNumbers) > 0 {
		var total int64
		for _, pn := range payoutNumbers {
			payoutTel, err := NormalizePhone(pn.Phone)
			if err != nil {
				return nil, fmt.Errorf("payout phone %q: %w", pn.Phone, err)
			}
			req.PayoutNumbers = append(req.PayoutNumbers, payoutNumberEntry{
				Tel:        payoutTel,
				Percentage: pn.Percent,
			})
			total += pn.Percent
		}
		if total != 100 {
			return nil, fmt.Errorf("%w: payout percentages sum to %d, want 100", ErrGatewayFailure, total)
		}
	}

	c.logger.Debug("requesting collection", "reference", referenceID, "amount", amountRWF, "split_legs", len(req.PayoutNumbers))

	resp, err := c.post(ctx, "/request-to-pay", req)
	if err != nil {
		return nil, err
	}
	return c.toResult(resp)
}

// CheckStatus asks the gateway for the current state of a collection.
func (c *CollectingClient) CheckStatus(ctx context.Context, referenceID string) (*CollectResult, error) {
	c.logger.Debug("checking collection status", "reference", referenceID)

	resp, err := c.post(ctx, "/check-status", map[string]string{"referenceId": referenceID})
	if err != nil {
		return nil, err
	}
	return c.toResult(resp)
}

func (c *CollectingClient) post(ctx context.Context, path string, payload interface{}) (*collectResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("collecting gateway unreachable", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrGatewayFailure, httpResp.StatusCode)
	}

	var resp collectResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrGatewayFailure, err)
	}
	return &resp, nil
}

func (c *CollectingClient) toResult(resp *collectResponse) (*CollectResult, error) {
	if isBalanceInsufficient(resp.Message) {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientBalance, resp.Message)
	}

	status := Status(resp.GatewayResponse.Data.Status)
	switch status {
	case StatusSuccessful, StatusPending, StatusFailed:
	default:
		return nil, fmt.Errorf("%w: unexpected status %q", ErrGatewayFailure, resp.GatewayResponse.Data.Status)
	}

	return &CollectResult{
		ReferenceID:  resp.ReferenceID,
		Status:       status,
		ProviderTxID: resp.GatewayResponse.Data.TransactionID,
		Message:      resp.Message,
	}, nil
}
