package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNormalizesCurrency(t *testing.T) {
	m, err := New(1250, " usd ")
	require.NoError(t, err)
	assert.Equal(t, "USD", m.Currency)
	assert.Equal(t, "12.50 USD", m.String())

	_, err = New(10, "US")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestArithmeticRequiresSameCurrency(t *testing.T) {
	a := Must(1000, "USD")
	b := Must(250, "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), sum.Amount)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(750), diff.Amount)

	_, err = a.Add(Must(1, "EUR"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = a.Cmp(Money{Amount: 1})
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestMulDivFloor(t *testing.T) {
	assert.Equal(t, int64(63000), Must(70000, "USD").MulDivFloor(90, 100).Amount)
	assert.Equal(t, int64(3333), Must(10000, "USD").MulDivFloor(1, 3).Amount)
	assert.Equal(t, int64(0), Must(10000, "USD").MulDivFloor(1, 0).Amount)
}

func TestMin(t *testing.T) {
	low, err := Min(Must(5, "USD"), Must(7, "USD"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), low.Amount)
	assert.Equal(t, "-0.05 USD", low.Multiply(-1).String())
}
