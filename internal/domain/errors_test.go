package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectionMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("order: %w", NewRejection(ReasonInsufficientCash, "SYM", SideBuy, "cash %s below floor %s", "1500", "2000"))

	assert.True(t, errors.Is(err, ErrInsufficientCash))
	assert.False(t, errors.Is(err, ErrExposureExceeded))

	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonInsufficientCash, rej.Reason)
	assert.Contains(t, rej.Error(), "BUY SYM rejected (InsufficientCash)")
}

func TestPersistenceErrorWraps(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := NewPersistenceError("append snapshot", cause)

	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, NewPersistenceError("noop", nil))
}

func TestPercentAndRounding(t *testing.T) {
	assert.Equal(t, "2000", Percent(MustDecimal("10000"), MustDecimal("20")).String())
	assert.Equal(t, "12.34", RoundCents(MustDecimal("12.349")).String())
}
