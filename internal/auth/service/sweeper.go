package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/heronworks/authcore/internal/auth/store"
	"github.com/heronworks/authcore/pkg/slogx"
)

// Sweeper deletes expired refresh token rows on an interval. Revoked rows
// are kept until they expire so replay of a rotated secret still finds the
// row and trips the theft response.
type Sweeper struct {
	Store    store.Store
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewSweeper(st store.Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		Store:    st,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called. One immediate sweep, then
// one per interval.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		s.sweep(ctx)
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop signals the loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.Store.RefreshTokens().DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		slogx.FromContext(ctx).Error("sweep expired refresh tokens",
			slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		slogx.FromContext(ctx).Info("swept expired refresh tokens",
			slog.Int64("count", n))
	}
}
