package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinemarwa/backend/internal/config"
)

func TestParseAcceptsHTTPBodyStrings(t *testing.T) {
	tests := []struct {
		raw      string
		currency string
		want     string
	}{
		{"1000", "RWF", "1000"},
		{" 1000.50 ", "RWF", "1000.5"},
		{"1,500", "RWF", "1500"},
		{"12.99", "usd", "12.99"},
		{"0", "RWF", "0"},
	}

	for _, tt := range tests {
		m, err := Parse(tt.raw, tt.currency)
		require.NoError(t, err, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, m.Amount.String(), "raw=%q", tt.raw)
	}
}

func TestParseDefaultsToRWF(t *testing.T) {
	m, err := Parse("250", "")
	require.NoError(t, err)
	assert.Equal(t, RWF, m.Currency)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		currency string
	}{
		{"negative", "-100", "RWF"},
		{"garbage", "abc", "RWF"},
		{"empty", "", "RWF"},
		{"unknown currency", "100", "NGN"},
		{"concatenated digits", "1111", "RWF"},
		{"concatenated digits long", "555555", "RWF"},
		{"run inside larger number", "25555", "RWF"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, tt.currency)
			assert.Error(t, err)
		})
	}
}

func TestParseAllowsRoundAmounts(t *testing.T) {
	// Trailing zero runs are legitimate round amounts, not fat-fingered input.
	for _, raw := range []string{"10000", "100000", "5000", "30000"} {
		_, err := Parse(raw, "RWF")
		assert.NoError(t, err, "raw=%q", raw)
	}
}

func TestDistributeIsExact(t *testing.T) {
	tests := []struct {
		total     string
		pct       int64
		wantShare string
		wantRest  string
	}{
		{"1000", 70, "700", "300"},
		{"1000", 30, "300", "700"},
		{"999.99", 70, "699.99", "300"},
		{"0.01", 70, "0.01", "0"},
		{"5000", 100, "5000", "0"},
		{"5000", 0, "0", "5000"},
	}

	for _, tt := range tests {
		total := Money{Amount: requireDecimal(t, tt.total), Currency: RWF}
		share, rest := Distribute(total, tt.pct)

		assert.True(t, share.Amount.Add(rest.Amount).Equal(total.Amount),
			"share %s + rest %s must equal total %s", share.Amount, rest.Amount, total.Amount)
		assert.Equal(t, tt.wantShare, share.Amount.String(), "total=%s pct=%d", tt.total, tt.pct)
		assert.Equal(t, tt.wantRest, rest.Amount.String(), "total=%s pct=%d", tt.total, tt.pct)
	}
}

func TestDistributeRemainderGoesToLargerShare(t *testing.T) {
	total := Money{Amount: requireDecimal(t, "100.01"), Currency: RWF}

	share, rest := Distribute(total, 70)
	assert.True(t, share.Amount.GreaterThan(rest.Amount))
	assert.True(t, share.Amount.Add(rest.Amount).Equal(total.Amount))

	share, rest = Distribute(total, 30)
	assert.True(t, rest.Amount.GreaterThan(share.Amount))
	assert.True(t, share.Amount.Add(rest.Amount).Equal(total.Amount))
}

func TestConverterToRWF(t *testing.T) {
	conv := NewConverter(config.CurrencyConfig{
		USDToRWF: 1350,
		EURToRWF: 1460,
		GHSToRWF: 92,
		XOFToRWF: 2.2,
	})

	usd := Money{Amount: decimal.NewFromInt(10), Currency: USD}
	got, err := conv.ToRWF(usd)
	require.NoError(t, err)
	assert.Equal(t, "13500", got.Amount.String())
	assert.Equal(t, RWF, got.Currency)

	rwf := FromRWF(5000)
	same, err := conv.ToRWF(rwf)
	require.NoError(t, err)
	assert.True(t, same.Amount.Equal(rwf.Amount))
}

func TestConverterRejectsUnknownCurrency(t *testing.T) {
	conv := NewConverter(config.CurrencyConfig{USDToRWF: 1350})
	_, err := conv.Convert(Money{Amount: decimal.NewFromInt(1), Currency: Currency("NGN")}, RWF)
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestWholeAndMinorUnits(t *testing.T) {
	m := Money{Amount: requireDecimal(t, "4999.50"), Currency: RWF}
	assert.Equal(t, int64(5000), m.WholeUnits())
	assert.Equal(t, int64(499950), m.MinorUnits())
}

func requireDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
