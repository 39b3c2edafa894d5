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

// DisbursingClient sends money to creators through the mobile-money
// disbursing gateway.
type DisbursingClient struct {
	logger     hclog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewDisbursingClient creates a disbursing gateway client from configuration.
func NewDisbursingClient(logger hclog.Logger, cfg config.GatewaysConfig) *DisbursingClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &DisbursingClient{
		logger:     logger.Named("disbursing-gateway"),
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.DisbursingURL,
		apiKey:     cfg.DisbursingKey,
	}
}

type disburseRequest struct {
	Amount      int64  `json:"amount"`
	Tel         string `json:"tel"`
	Description string `json:"description"`
	ReferenceID string `json:"referenceId"`
}

type disburseResponse struct {
	ReferenceID     string `json:"referenceId"`
	Message         string `json:"message"`
	GatewayResponse struct {
		Data struct {
			Status        string `json:"status"`
			TransactionID string `json:"transaction_id"`
		} `json:"data"`
	} `json:"gateway_response"`
}

// SendMoney pushes amountRWF to the recipient's mobile wallet.
func (c *DisbursingClient) SendMoney(ctx context.Context, amountRWF int64, recipientPhone, referenceID, description string) (*DisburseResult, error) {
	tel, err := NormalizePhone(recipientPhone)
	if err != nil {
		return nil, fmt.Errorf("recipient phone %q: %w", recipientPhone, err)
	}

	req := disburseRequest{
		Amount:      amountRWF,
		Tel:         tel,
		Description: SanitizeDescription(description),
		ReferenceID: referenceID,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send-money", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("sending disbursement", "reference", referenceID, "amount", amountRWF)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("disbursing gateway unreachable", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrGatewayFailure, httpResp.StatusCode)
	}

	var resp disburseResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrGatewayFailure, err)
	}

	if status := Status(resp.GatewayResponse.Data.Status); status == StatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrGatewayFailure, resp.Message)
	}

	return &DisburseResult{
		ReferenceID:  resp.ReferenceID,
		ProviderTxID: resp.GatewayResponse.Data.TransactionID,
		Message:      resp.Message,
	}, nil
}
