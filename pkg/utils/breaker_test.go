package utils

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecuteWithBreaker(t *testing.T) {
	cb := NewBreaker("test", zap.NewNop(), nil)

	got, err := ExecuteWithBreaker(cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	boom := errors.New("boom")
	// 4 failures out of 5 requests trips the breaker
	for i := 0; i < 4; i++ {
		got, err = ExecuteWithBreaker(cb, func() (int, error) { return 1, boom })
		require.ErrorIs(t, err, boom)
		assert.Zero(t, got)
	}

	_, err = ExecuteWithBreaker(cb, func() (int, error) { return 1, nil })
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestExecuteWithBreaker_IsSuccessful(t *testing.T) {
	notFound := errors.New("not found")
	cb := NewBreaker("test", zap.NewNop(), func(err error) bool {
		return err == nil || errors.Is(err, notFound)
	})

	for i := 0; i < 10; i++ {
		_, err := ExecuteWithBreaker(cb, func() (string, error) { return "", notFound })
		require.ErrorIs(t, err, notFound)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
