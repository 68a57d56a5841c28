package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepExpired(context.Context) (int, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestExpirySweeper_Run(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("SweepsUntilCancelled", func(t *testing.T) {
		sweeper := &countingSweeper{}
		w := NewExpirySweeper(sweeper, 5*time.Millisecond, logger)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop after cancellation")
		}
	})

	t.Run("KeepsGoingAfterErrors", func(t *testing.T) {
		sweeper := &countingSweeper{err: errors.New("store down")}
		w := NewExpirySweeper(sweeper, 5*time.Millisecond, logger)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() { _ = w.Run(ctx) }()
		assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	})
}
