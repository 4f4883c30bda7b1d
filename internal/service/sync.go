package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"news_verifier/internal/domain"
	"news_verifier/internal/metrics"
)

// SyncDriver replays queued ratings whenever connectivity comes back.
type SyncDriver struct {
	ratings *RatingService
	queue   PendingQueue
	cache   NewsCache
	network Connectivity
	logger  *slog.Logger

	// mu serializes drain passes started from Run and from manual calls.
	mu    sync.Mutex
	armed atomic.Bool
}

func NewSyncDriver(
	ratings *RatingService,
	queue PendingQueue,
	cache NewsCache,
	network Connectivity,
	logger *slog.Logger,
) *SyncDriver {
	return &SyncDriver{
		ratings: ratings,
		queue:   queue,
		cache:   cache,
		network: network,
		logger:  logger,
	}
}

// Drain runs one pass over the pending queue in insertion order. It stops at
// the first failed insert or recompute, or when connectivity drops, leaving
// that item and everything after it queued. An item whose rating was stored
// but whose recompute failed is marked so the next pass only recomputes.
func (d *SyncDriver) Drain(ctx context.Context) (*domain.DrainReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	startTime := time.Now()
	report := &domain.DrainReport{}

	pending, err := d.queue.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending ratings: %w", err)
	}
	if len(pending) == 0 {
		d.logger.Debug("nothing to sync")
		metrics.QueueDepth.Set(0)
		return report, nil
	}

	d.logger.Info("starting sync", "pending", len(pending))

	profileID, err := d.ratings.ResolveProfileID(ctx)
	if err != nil {
		report.Pending = pendingIDs(pending)
		return report, fmt.Errorf("resolve profile: %w", err)
	}
	report.ProfileID = profileID

	var storageErr error
	for i, p := range pending {
		if ctx.Err() != nil {
			report.StopReason = domain.StopCanceled
			report.Pending = pendingIDs(pending[i:])
			break
		}
		if !d.network.Online() {
			report.StopReason = domain.StopOffline
			report.Pending = pendingIDs(pending[i:])
			break
		}

		delivery, err := d.ratings.Deliver(ctx, profileID, p)
		if err != nil {
			metrics.Replays.WithLabelValues("failed").Inc()
			d.logger.Warn("replay failed, stopping pass",
				"pending_id", p.ID,
				"news_item_id", p.NewsItemID,
				"error", err,
			)
			report.StopReason = domain.StopRemoteFailed
			report.Pending = pendingIDs(pending[i:])
			break
		}
		if delivery.AggregateErr != nil {
			metrics.Replays.WithLabelValues("aggregate_failed").Inc()
			report.AggregateErrors++
			report.StopReason = domain.StopAggregateFailed
			report.Pending = pendingIDs(pending[i:])
			d.logger.Warn("aggregate not updated, stopping pass",
				"pending_id", p.ID,
				"news_item_id", p.NewsItemID,
				"rating_item_id", delivery.Rating.ID,
				"error", delivery.AggregateErr,
			)
			// Recorded even when canceled: the row exists remotely.
			if delivery.Inserted {
				if err := d.queue.MarkInserted(context.WithoutCancel(ctx), p, delivery.Rating.ID); err != nil {
					storageErr = fmt.Errorf("mark pending rating %d inserted: %w", p.ID, err)
				}
			}
			break
		}
		metrics.Replays.WithLabelValues("delivered").Inc()

		// The rating is already stored remotely; keeping the row would
		// insert it a second time on the next pass.
		if err := d.queue.Remove(ctx, p); err != nil {
			storageErr = fmt.Errorf("remove pending rating %d: %w", p.ID, err)
			report.Delivered = append(report.Delivered, p.ID)
			report.Pending = pendingIDs(pending[i+1:])
			break
		}
		report.Delivered = append(report.Delivered, p.ID)
	}

	// Invalidation must happen even if the pass was canceled midway.
	if err := d.cache.Clear(context.WithoutCancel(ctx)); err != nil {
		d.logger.Error("failed to clear cache after sync", "error", err)
	}
	d.ratings.refreshQueueDepth(context.WithoutCancel(ctx))

	report.Duration = time.Since(startTime)
	metrics.DrainPasses.Inc()

	d.logger.Info("sync completed",
		"delivered", len(report.Delivered),
		"pending", len(report.Pending),
		"aggregate_errors", report.AggregateErrors,
		"stop_reason", report.StopReason,
		"duration", report.Duration,
	)

	return report, storageErr
}

// Run drains the queue on every transition to online until ctx is done.
// The monitor coalesces transitions that arrive during a pass, so after each
// pass Run re-reads connectivity itself instead of waiting for an event.
func (d *SyncDriver) Run(ctx context.Context) error {
	events := d.network.Subscribe(ctx)
	online := false

	d.logger.Info("sync driver started")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("sync driver stopped")
			return ctx.Err()
		case connected, ok := <-events:
			if !ok {
				d.logger.Info("sync driver stopped")
				return ctx.Err()
			}
			wasOnline := online
			online = connected
			if !connected || wasOnline {
				continue
			}
			online = d.drainOnline(ctx)
		}
	}
}

// drainOnline runs passes until one ends for a reason other than going
// offline, or until connectivity is really gone. It returns the connectivity
// seen after the last pass.
func (d *SyncDriver) drainOnline(ctx context.Context) bool {
	for {
		report, err := d.Drain(ctx)
		if err != nil {
			d.logger.Error("sync failed", "error", err)
		}

		online := d.network.Online()
		if err != nil || report.StopReason != domain.StopOffline || !online || ctx.Err() != nil {
			return online
		}
		d.logger.Info("connectivity returned during sync, draining again")
	}
}

// Arm starts Run in the background. It returns false if the driver is
// already running.
func (d *SyncDriver) Arm(ctx context.Context) bool {
	if !d.armed.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer d.armed.Store(false)
		_ = d.Run(ctx)
	}()
	return true
}

func pendingIDs(items []domain.PendingRatingSubmission) []int64 {
	ids := make([]int64, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	return ids
}
