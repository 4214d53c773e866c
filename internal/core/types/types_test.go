package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantityString(t *testing.T) {
	assert.Equal(t, "0.0000", Quantity(0).String())
	assert.Equal(t, "1.5000", NewQuantityFromFloat64(1.5).String())
	assert.Equal(t, "-2.2500", NewQuantityFromFloat64(-2.25).String())

	// Fractional-only values keep the leading zero.
	assert.Equal(t, "0.0001", NewQuantityFromInt64Scaled(1).String())
	assert.Equal(t, "-0.0001", NewQuantityFromInt64Scaled(-1).String())
}

func TestQuantityUnmarshalJSON(t *testing.T) {
	cases := []struct {
		in   string
		want int64 // scaled
	}{
		{`5`, 50000},
		{`5.25`, 52500},
		{`"5.25"`, 52500},
		{`-0.5`, -5000},
		{`"-3"`, -30000},
		{`0.00015`, 1},    // extra digits truncated
		{`1.5e2`, 1500000}, // exponent form tolerated
		{`null`, 0},
	}

	for _, tc := range cases {
		var q Quantity
		require.NoError(t, json.Unmarshal([]byte(tc.in), &q), "input %s", tc.in)
		assert.Equal(t, tc.want, q.Int64Scaled(), "input %s", tc.in)
	}

	var q Quantity
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &q))
}

func TestQuantityMarshalJSON(t *testing.T) {
	data, err := json.Marshal(NewQuantityFromFloat64(12.75))
	require.NoError(t, err)
	// Encoded as a bare number, not a string.
	assert.Equal(t, "12.7500", string(data))
}

func TestQuantityArithmeticHelpers(t *testing.T) {
	q := NewQuantityFromFloat64(3.5)

	assert.True(t, q.IsPositive())
	assert.True(t, q.Neg().IsNegative())
	assert.Equal(t, q, q.Neg().Abs())
	assert.True(t, Quantity(0).IsZero())

	// Scaled addition stays exact where float math would drift.
	a := NewQuantityFromFloat64(0.1)
	b := NewQuantityFromFloat64(0.2)
	assert.Equal(t, NewQuantityFromFloat64(0.3), a+b)
}

func TestMoneyFromString(t *testing.T) {
	m, err := NewMoneyFromString("19.99")
	require.NoError(t, err)
	assert.Equal(t, "19.99", m.String())

	_, err = NewMoneyFromString("not-a-number")
	assert.Error(t, err)

	assert.True(t, ZeroMoney().IsZero())
}
