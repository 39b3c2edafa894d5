package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cinemarwa/backend/internal/config"
)

// Currency is an ISO-4217 style currency code accepted by the platform.
type Currency string

const (
	RWF Currency = "RWF"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GHS Currency = "GHS"
	XOF Currency = "XOF"
)

var (
	// ErrInvalidAmount covers negative, malformed, or suspicious amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrUnknownCurrency is returned for currencies outside the accepted set.
	ErrUnknownCurrency = errors.New("unknown currency")
)

// Money is a decimal amount in a specific currency. The zero value is 0 RWF.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// New builds a Money value, normalising the currency code.
func New(amount decimal.Decimal, currency Currency) Money {
	if currency == "" {
		currency = RWF
	}
	return Money{Amount: amount, Currency: currency}
}

// FromRWF builds an RWF Money from a whole-franc amount.
func FromRWF(amount int64) Money {
	return Money{Amount: decimal.NewFromInt(amount), Currency: RWF}
}

// Zero returns a zero amount in the given currency.
func Zero(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// ValidCurrency reports whether code names an accepted currency.
func ValidCurrency(code string) bool {
	switch Currency(strings.ToUpper(strings.TrimSpace(code))) {
	case RWF, USD, EUR, GHS, XOF:
		return true
	}
	return false
}

// Parse converts a raw amount string from an HTTP body into Money. It trims
// whitespace and thousands separators, rejects negative and malformed values,
// and rejects any run of four or more identical non-zero digits in the integer
// part. Such runs come from clients accidentally concatenating digits
// ("1111" submitted for four taps of "1"); trailing zero runs stay legal so
// round amounts like 10000 pass.
func Parse(raw string, currency string) (Money, error) {
	code := Currency(strings.ToUpper(strings.TrimSpace(currency)))
	if code == "" {
		code = RWF
	}
	if !ValidCurrency(string(code)) {
		return Money{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}

	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return Money{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative amount %q", ErrInvalidAmount, raw)
	}
	if hasRepeatedDigitRun(amount) {
		return Money{}, fmt.Errorf("%w: repeated digit run in %q", ErrInvalidAmount, raw)
	}

	return Money{Amount: amount, Currency: code}, nil
}

// hasRepeatedDigitRun reports whether the integer part of the amount contains
// a run of 4+ identical non-zero digits.
func hasRepeatedDigitRun(amount decimal.Decimal) bool {
	digits := amount.Truncate(0).Abs().String()
	run := 1
	for i := 1; i < len(digits); i++ {
		if digits[i] == digits[i-1] && digits[i] != '0' {
			run++
			if run >= 4 {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// Distribute splits total into a pct share and its remainder so that the two
// parts always add back to total. The sub-cent rounding remainder lands on
// the larger share.
func Distribute(total Money, pct int64) (share Money, rest Money) {
	hundred := decimal.NewFromInt(100)
	if pct >= 50 {
		shareAmt := total.Amount.Mul(decimal.NewFromInt(pct)).Div(hundred).Round(2)
		return Money{Amount: shareAmt, Currency: total.Currency},
			Money{Amount: total.Amount.Sub(shareAmt), Currency: total.Currency}
	}
	restAmt := total.Amount.Mul(decimal.NewFromInt(100 - pct)).Div(hundred).Round(2)
	return Money{Amount: total.Amount.Sub(restAmt), Currency: total.Currency},
		Money{Amount: restAmt, Currency: total.Currency}
}

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: cannot add %s to %s", ErrInvalidAmount, other.Currency, m.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// WholeUnits returns the amount rounded to whole currency units, as used by
// the collecting gateway which only accepts integer RWF.
func (m Money) WholeUnits() int64 {
	return m.Amount.Round(0).IntPart()
}

// MinorUnits returns the amount in minor units (cents), as used by the card
// gateway.
func (m Money) MinorUnits() int64 {
	return m.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}

// Converter converts between currencies using the fixed rate table from
// configuration. RWF is the settlement base; every rate is foreign→RWF.
type Converter struct {
	toRWF map[Currency]decimal.Decimal
}

// NewConverter builds a converter from the configured rate table.
func NewConverter(cfg config.CurrencyConfig) *Converter {
	return &Converter{
		toRWF: map[Currency]decimal.Decimal{
			RWF: decimal.NewFromInt(1),
			USD: decimal.NewFromFloat(cfg.USDToRWF),
			EUR: decimal.NewFromFloat(cfg.EURToRWF),
			GHS: decimal.NewFromFloat(cfg.GHSToRWF),
			XOF: decimal.NewFromFloat(cfg.XOFToRWF),
		},
	}
}

// Convert converts m into the target currency via the RWF base rate table.
func (c *Converter) Convert(m Money, to Currency) (Money, error) {
	fromRate, ok := c.toRWF[m.Currency]
	if !ok {
		return Money{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, m.Currency)
	}
	toRate, ok := c.toRWF[to]
	if !ok {
		return Money{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, to)
	}
	if m.Currency == to {
		return m, nil
	}
	converted := m.Amount.Mul(fromRate).Div(toRate).Round(2)
	return Money{Amount: converted, Currency: to}, nil
}

// ToRWF converts m to the settlement currency.
func (c *Converter) ToRWF(m Money) (Money, error) {
	return c.Convert(m, RWF)
}
