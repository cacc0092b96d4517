package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gojek/heimdall/v7"
	"github.com/stretchr/testify/assert"

	"floraGuardAPI/internal/gamification"
	"floraGuardAPI/internal/pkg/logger"
)

func TestRetrierStopsOnSuccess(t *testing.T) {
	r := NewRetrier(4, heimdall.NewNoRetrier(), logger.NewNop(), nil)
	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrierWrapsFinalError(t *testing.T) {
	r := NewRetrier(3, heimdall.NewNoRetrier(), logger.NewNop(), nil)
	cause := errors.New("connection refused")
	calls := 0
	err := r.Do(context.Background(), "upsert_stats", func(context.Context) error {
		calls++
		return cause
	})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, calls)
}

func TestRetrierDoesNotRetryInvalidInput(t *testing.T) {
	r := NewRetrier(5, heimdall.NewNoRetrier(), logger.NewNop(), nil)
	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return fmt.Errorf("%w: bad amount", gamification.ErrInvalidInput)
	})
	assert.ErrorIs(t, err, gamification.ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, calls)
}

func TestRetrierHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(5, DefaultBackoff(), logger.NewNop(), nil)
	calls := 0
	err := r.Do(ctx, "op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, calls)
}
