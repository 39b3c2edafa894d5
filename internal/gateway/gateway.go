package gateway

import (
	"context"
	"errors"
	"strings"
)

// Status is the collecting gateway's view of a collection.
type Status string

const (
	StatusSuccessful Status = "SUCCESSFUL"
	StatusPending    Status = "PENDING"
	StatusFailed     Status = "FAILED"
)

var (
	// ErrInsufficientBalance means the payer's wallet cannot cover the amount.
	ErrInsufficientBalance = errors.New("payer balance insufficient")
	// ErrGatewayFailure means the gateway rejected or could not process the call.
	ErrGatewayFailure = errors.New("gateway failure")
	// ErrInvalidPhone means the phone number could not be normalised.
	ErrInvalidPhone = errors.New("invalid phone number")
)

// PayoutNumber is one leg of an automatic split performed by the collecting
// gateway on settlement. Percentages across a request must sum to 100.
type PayoutNumber struct {
	Phone   string
	Percent int64
}

// CollectResult is the outcome of a collection request or status check.
type CollectResult struct {
	ReferenceID  string
	Status       Status
	ProviderTxID string
	Message      string
}

// DisburseResult is the outcome of a disbursement request.
type DisburseResult struct {
	ReferenceID  string
	ProviderTxID string
	Message      string
}

// PaymentIntent is the card gateway's intent handle; confirmation is
// client-driven and the outcome arrives via webhook or ConfirmPayment.
type PaymentIntent struct {
	IntentID     string
	ClientSecret string
	Status       Status
}

// Collector is the mobile-money collecting gateway.
type Collector interface {
	RequestToPay(ctx context.Context, amountRWF int64, payerPhone, referenceID, description string, payoutNumbers []PayoutNumber) (*CollectResult, error)
	CheckStatus(ctx context.Context, referenceID string) (*CollectResult, error)
}

// Disburser is the mobile-money disbursing gateway used for creator payouts.
type Disburser interface {
	SendMoney(ctx context.Context, amountRWF int64, recipientPhone, referenceID, description string) (*DisburseResult, error)
}

// CardIntents is the intent-based card gateway.
type CardIntents interface {
	CreatePaymentIntent(ctx context.Context, amountMinor int64, currency, email, description string, metadata map[string]string) (*PaymentIntent, error)
	ConfirmPayment(ctx context.Context, intentID string) (*CollectResult, error)
}

// balanceInsufficientMarker is the literal substring the collecting gateway
// puts in its message when the payer's wallet cannot cover the amount.
const balanceInsufficientMarker = "Check users Balance"

func isBalanceInsufficient(message string) bool {
	return strings.Contains(message, balanceInsufficientMarker)
}

// NormalizePhone converts a payer or payout phone number to the canonical
// local form the gateways accept: a leading 0 followed by the subscriber
// digits, country prefix stripped.
func NormalizePhone(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else if r != '+' && r != ' ' && r != '-' && r != '(' && r != ')' {
			return "", ErrInvalidPhone
		}
	}

	n := digits.String()
	switch {
	case strings.HasPrefix(n, "250") && len(n) == 12:
		n = "0" + n[3:]
	case strings.HasPrefix(n, "0") && len(n) == 10:
		// already canonical
	case len(n) == 9 && strings.HasPrefix(n, "7"):
		n = "0" + n
	default:
		return "", ErrInvalidPhone
	}

	if !strings.HasPrefix(n, "07") {
		return "", ErrInvalidPhone
	}
	return n, nil
}

// SanitizeDescription strips a free-form description down to the
// alphanumeric-plus-space alphabet the collecting gateway accepts and caps it
// at 500 characters.
func SanitizeDescription(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	s := strings.Join(strings.Fields(b.String()), " ")
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}
