package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already two places", input: "100.25", expected: "100.25"},
		{name: "rounds half up", input: "0.005", expected: "0.01"},
		{name: "rounds half away from zero for negatives", input: "-0.005", expected: "-0.01"},
		{name: "truncating digits below half", input: "33.333333", expected: "33.33"},
		{name: "carrying digits above half", input: "66.666666", expected: "66.67"},
		{name: "zero", input: "0", expected: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := decimal.NewFromString(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, Round(in).String())
		})
	}
}

func TestRoundRate(t *testing.T) {
	in := decimal.RequireFromString("0.083333333")
	assert.Equal(t, "0.0833", RoundRate(in).String())
}

func TestIsFraction(t *testing.T) {
	assert.True(t, IsFraction(decimal.Zero))
	assert.True(t, IsFraction(decimal.NewFromInt(1)))
	assert.True(t, IsFraction(decimal.RequireFromString("0.6")))
	assert.False(t, IsFraction(decimal.RequireFromString("1.01")))
	assert.False(t, IsFraction(decimal.RequireFromString("-0.1")))
}

func TestWithinTolerance(t *testing.T) {
	a := decimal.RequireFromString("100.00")

	// Exactly one cent apart is still within tolerance.
	assert.True(t, WithinTolerance(a, decimal.RequireFromString("100.01")))
	assert.True(t, WithinTolerance(a, decimal.RequireFromString("99.99")))
	assert.False(t, WithinTolerance(a, decimal.RequireFromString("100.02")))
}
