package payment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

func newAttempt(t *testing.T) *Attempt {
	t.Helper()
	a, err := NewAttempt(uuid.New(), decimal.RequireFromString("259.38"), "usd", "mock")
	require.NoError(t, err)
	return a
}

func TestNewAttempt(t *testing.T) {
	a := newAttempt(t)

	assert.Equal(t, StatusOutstanding, a.Status())
	assert.Equal(t, "USD", a.Currency())
	assert.Equal(t, Outcome(""), a.Outcome())
	assert.True(t, a.IsLive())
	assert.Equal(t, int64(1), a.Version())

	_, err := NewAttempt(uuid.New(), decimal.NewFromInt(-1), "usd", "mock")
	assert.ErrorIs(t, err, domainerr.ErrValidation)
}

func TestRedirectThenSucceed(t *testing.T) {
	a := newAttempt(t)

	require.NoError(t, a.RecordRedirect("cs_test_1", "https://pay.example/cs_test_1"))
	assert.Equal(t, OutcomeRedirect, a.Outcome())
	assert.ErrorIs(t, a.RecordRedirect("cs_test_2", "x"), domainerr.ErrInvalidState)

	changed, err := a.Succeed()
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = a.Succeed()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, a.IsLive())
	assert.NotNil(t, a.SucceededAt())
}

func TestFail(t *testing.T) {
	a := newAttempt(t)

	changed, err := a.Fail("gateway timeout")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, a.IsLive())
	assert.Equal(t, OutcomeFailed, a.Outcome())
	assert.Equal(t, "gateway timeout", a.FailureReason())

	changed, err = a.Fail("again")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "gateway timeout", a.FailureReason())

	_, err = a.Succeed()
	assert.ErrorIs(t, err, domainerr.ErrInvalidState)
}

func TestSucceededCannotFail(t *testing.T) {
	a := newAttempt(t)
	require.NoError(t, a.RecordImmediateConfirm(""))
	_, err := a.Succeed()
	require.NoError(t, err)

	_, err = a.Fail("late failure signal")
	assert.ErrorIs(t, err, domainerr.ErrInvalidState)
	assert.Equal(t, StatusSucceeded, a.Status())
}

func TestRecover(t *testing.T) {
	a := newAttempt(t)
	require.NoError(t, a.RecordRedirect("cs_test_1", "https://pay.example/cs_test_1"))

	_, err := a.Recover()
	assert.ErrorIs(t, err, domainerr.ErrInvalidState, "only failed attempts recover")

	_, err = a.Fail("session expired")
	require.NoError(t, err)
	assert.False(t, a.IsLive())

	ok, err := a.Recover()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusSucceeded, a.Status())
	assert.NotNil(t, a.SucceededAt())
	assert.True(t, a.IsLive())

	ok, err = a.Recover()
	require.NoError(t, err)
	assert.False(t, ok)
}
