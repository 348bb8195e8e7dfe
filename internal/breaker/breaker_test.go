package breaker

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errBenign = errors.New("not found")

func TestBreakerTripsOnFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cb := New(cfg, zaptest.NewLogger(t))

	boom := errors.New("boom")
	for i := 0; i < int(cfg.MinRequests); i++ {
		err := Run(cb, func() error { return boom })
		require.ErrorIs(t, err, boom)
	}

	err := Run(cb, func() error { return nil })
	assert.True(t, IsOpen(err))
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestBreakerIgnoresBenignErrors(t *testing.T) {
	cfg := DefaultConfig("test")
	cb := New(cfg, zaptest.NewLogger(t), errBenign)

	for i := 0; i < 2*int(cfg.MinRequests); i++ {
		_, err := Do(cb, func() (int, error) { return 0, errBenign })
		require.ErrorIs(t, err, errBenign)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestDoReturnsValue(t *testing.T) {
	cb := New(DefaultConfig("test"), zaptest.NewLogger(t))

	v, err := Do(cb, func() ([]string, error) { return []string{"a"}, nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, v)
}
