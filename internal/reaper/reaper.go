// Package reaper cancels claims that were never started within the claim TTL.
package reaper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"helpmatch/internal/featureflags"
	"helpmatch/internal/models"
	"helpmatch/internal/observability"
	"helpmatch/internal/repository"
)

// Expirer cancels one stale claim at the version it was read.
type Expirer interface {
	ExpireClaim(ctx context.Context, requestID uint, expectedVersion int64, cutoff time.Time) (*models.Request, error)
}

// FlagSource reports global feature flags.
type FlagSource interface {
	Global(name string) bool
}

// Reaper periodically expires stale claims.
type Reaper struct {
	requests repository.RequestRepository
	expirer  Expirer
	flags    FlagSource
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New returns a Reaper. A non-positive ttl or interval disables it.
func New(requests repository.RequestRepository, expirer Expirer, flags FlagSource, ttl, interval time.Duration) *Reaper {
	return &Reaper{
		requests: requests,
		expirer:  expirer,
		flags:    flags,
		ttl:      ttl,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enabled reports whether Start will run sweeps.
func (r *Reaper) Enabled() bool {
	return r.ttl > 0 && r.interval > 0
}

// Start runs the sweep loop in the background until Stop. It is a no-op when
// the reaper is disabled or already running.
func (r *Reaper) Start() {
	if !r.Enabled() || !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.loop()
}

// Stop ends the loop and waits for an in-flight sweep.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.started.Load() {
		<-r.done
	}
}

func (r *Reaper) loop() {
	defer close(r.done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				observability.LogAsyncOperationError(ctx, "claim_reaper", err, nil)
			}
		}
	}
}

// Sweep expires every claim older than the TTL and returns how many it cancelled.
// Claims that move concurrently are skipped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	if r.flags != nil && !r.flags.Global(featureflags.ClaimReaper) {
		return 0, nil
	}
	cutoff := r.now().Add(-r.ttl)

	var stale []*models.Request
	for req, err := range r.requests.List(ctx, repository.RequestFilter{
		Statuses:      []models.RequestStatus{models.RequestStatusClaimed},
		ClaimedBefore: &cutoff,
	}) {
		if err != nil {
			return 0, err
		}
		stale = append(stale, req)
	}

	expired := 0
	for _, req := range stale {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		_, err := r.expirer.ExpireClaim(ctx, req.ID, req.Version, cutoff)
		switch {
		case err == nil:
			expired++
		case models.IsConflict(err), models.IsStateError(err):
			observability.GlobalLogger.DebugContext(ctx, "claim moved before expiry",
				slog.Uint64("request_id", uint64(req.ID)),
				slog.String("error", err.Error()),
			)
		default:
			return expired, err
		}
	}
	if expired > 0 {
		observability.GlobalLogger.InfoContext(ctx, "expired stale claims",
			slog.Int("count", expired),
			slog.Time("cutoff", cutoff),
		)
	}
	return expired, nil
}
