package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinemarwa/backend/internal/config"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"0781234567", "0781234567"},
		{"250781234567", "0781234567"},
		{"+250781234567", "0781234567"},
		{"+250 781 234 567", "0781234567"},
		{"781234567", "0781234567"},
		{"078-123-4567", "0781234567"},
	}

	for _, tt := range tests {
		got, err := NormalizePhone(tt.raw)
		require.NoError(t, err, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
	}
}

func TestNormalizePhoneRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "12345", "abc", "06123456789012", "0681234567"} {
		_, err := NormalizePhone(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestSanitizeDescription(t *testing.T) {
	assert.Equal(t, "Movie watch Inzovu 2", SanitizeDescription("Movie watch: Inzovu #2!"))
	assert.Equal(t, "plain", SanitizeDescription("plain"))

	long := make([]byte, 0, 600)
	for i := 0; i < 600; i++ {
		long = append(long, 'a')
	}
	assert.Len(t, SanitizeDescription(string(long)), 500)
}

func testCollector(t *testing.T, handler http.HandlerFunc) *CollectingClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCollectingClient(hclog.NewNullLogger(), config.GatewaysConfig{
		CollectingURL: srv.URL,
		CollectingKey: "test-key",
	})
}

func TestRequestToPaySendsCanonicalRequest(t *testing.T) {
	var got collectRequest
	client := testCollector(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"referenceId": "ref-1",
			"gateway_response": map[string]interface{}{
				"data": map[string]interface{}{
					"status":         "SUCCESSFUL",
					"transaction_id": "tx-9",
				},
			},
		})
	})

	res, err := client.RequestToPay(context.Background(), 1000, "+250781234567", "ref-1", "Movie watch: Inzovu!", []PayoutNumber{
		{Phone: "250788000111", Percent: 70},
		{Phone: "0788000222", Percent: 30},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), got.Amount)
	assert.Equal(t, "0781234567", got.Tel)
	assert.Equal(t, "Movie watch Inzovu", got.Description)
	require.Len(t, got.PayoutNumbers, 2)
	assert.Equal(t, "0788000111", got.PayoutNumbers[0].Tel)
	assert.Equal(t, int64(70), got.PayoutNumbers[0].Percentage)

	assert.Equal(t, StatusSuccessful, res.Status)
	assert.Equal(t, "tx-9", res.ProviderTxID)
}

func TestRequestToPayRejectsBadSplit(t *testing.T) {
	client := testCollector(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway must not be called for an invalid split")
	})

	_, err := client.RequestToPay(context.Background(), 1000, "0781234567", "ref-1", "x", []PayoutNumber{
		{Phone: "0788000111", Percent: 70},
		{Phone: "0788000222", Percent: 20},
	})
	assert.ErrorIs(t, err, ErrGatewayFailure)
}

func TestCollectingBalanceInsufficient(t *testing.T) {
	client := testCollector(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"referenceId": "ref-1",
			"message":     "FAILED: Check users Balance before retrying",
			"gateway_response": map[string]interface{}{
				"data": map[string]interface{}{"status": "FAILED"},
			},
		})
	})

	_, err := client.RequestToPay(context.Background(), 1000, "0781234567", "ref-1", "x", nil)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCheckStatusPending(t *testing.T) {
	client := testCollector(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"referenceId": "ref-2",
			"gateway_response": map[string]interface{}{
				"data": map[string]interface{}{"status": "PENDING"},
			},
		})
	})

	res, err := client.CheckStatus(context.Background(), "ref-2")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
}

func TestCardCreatePaymentIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "499950", r.PostForm.Get("amount"))
		assert.Equal(t, "rwf", r.PostForm.Get("currency"))
		assert.Equal(t, "pay-1", r.PostForm.Get("metadata[paymentId]"))
		json.NewEncoder(w).Encode(map[string]string{
			"id":            "pi_123",
			"client_secret": "pi_123_secret",
			"status":        "requires_payment_method",
		})
	}))
	t.Cleanup(srv.Close)

	client := NewCardClient(hclog.NewNullLogger(), config.GatewaysConfig{CardURL: srv.URL, CardKey: "sk_test"})
	intent, err := client.CreatePaymentIntent(context.Background(), 499950, "RWF", "user@example.com", "Series access", map[string]string{"paymentId": "pay-1"})
	require.NoError(t, err)

	assert.Equal(t, "pi_123", intent.IntentID)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
	assert.Equal(t, StatusPending, intent.Status)
}

func TestCardConfirmPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment_intents/pi_123", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"id": "pi_123", "status": "succeeded"})
	}))
	t.Cleanup(srv.Close)

	client := NewCardClient(hclog.NewNullLogger(), config.GatewaysConfig{CardURL: srv.URL, CardKey: "sk_test"})
	res, err := client.ConfirmPayment(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, res.Status)
}

func TestDisburserSendMoney(t *testing.T) {
	var got disburseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"referenceId": "wd-1",
			"gateway_response": map[string]interface{}{
				"data": map[string]interface{}{
					"status":         "SUCCESSFUL",
					"transaction_id": "tx-out-1",
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewDisbursingClient(hclog.NewNullLogger(), config.GatewaysConfig{DisbursingURL: srv.URL})
	res, err := client.SendMoney(context.Background(), 1000, "250788000111", "wd-1", "Creator payout")
	require.NoError(t, err)

	assert.Equal(t, "0788000111", got.Tel)
	assert.Equal(t, int64(1000), got.Amount)
	assert.Equal(t, "tx-out-1", res.ProviderTxID)
}
