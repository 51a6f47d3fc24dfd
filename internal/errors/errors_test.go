package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryableKinds(t *testing.T) {
	assert.True(t, IsRetryable(ResourceExhaustion("pool borrow timeout", nil)))
	assert.True(t, IsRetryable(TransientTransport("connection reset", nil)))
	assert.False(t, IsRetryable(Validation("bad access_level", nil)))
	assert.False(t, IsRetryable(Corruption("bad cache blob", nil)))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestFatalKind(t *testing.T) {
	assert.True(t, IsFatal(Fatal("unsupported extension", nil)))
	assert.False(t, IsFatal(Validation("bad input", nil)))
}

func TestIsMatchesByKind(t *testing.T) {
	var sentinelFatal = &RetrievalError{Kind: KindFatal}
	err := Fatal("zero bytes from parser", nil)
	assert.True(t, errors.Is(err, sentinelFatal))

	wrapped := errors.New("disk full")
	err2 := Wrap(KindFatal, wrapped)
	require.ErrorIs(t, err2, wrapped)
	assert.Equal(t, KindFatal, GetKind(err2))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := Validation("access_level out of range", nil).
		WithDetail("access_level", "150").
		WithSuggestion("use a value in [1,100]")

	assert.Equal(t, "150", err.Details["access_level"])
	assert.Equal(t, "use a value in [1,100]", err.Suggestion)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindFatal, nil))
}
