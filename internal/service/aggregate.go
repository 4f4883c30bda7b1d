package service

import (
	"context"
	"fmt"
	"log/slog"

	"news_verifier/internal/domain"
	"news_verifier/internal/metrics"
)

// Aggregator folds a newly delivered rating into the item's running average.
type Aggregator struct {
	news   NewsRepository
	cache  NewsCache
	logger *slog.Logger
}

func NewAggregator(news NewsRepository, cache NewsCache, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		news:   news,
		cache:  cache,
		logger: logger,
	}
}

// Recompute reads the current aggregate, applies one more rating and writes
// it back. The read and the write are separate statements; two concurrent
// recomputes for the same item may lose an update. An error means the
// aggregate was not written.
func (a *Aggregator) Recompute(ctx context.Context, newsItemID int64, value float64) error {
	item, err := a.news.GetByID(ctx, newsItemID)
	if err != nil {
		metrics.AggregateUpdates.WithLabelValues("read_failed").Inc()
		return fmt.Errorf("get news item %d: %w", newsItemID, err)
	}

	total, avg := domain.NextAverage(item.TotalRatings, item.AverageReliabilityScore, value)

	if err := a.news.UpdateAggregate(ctx, newsItemID, total, avg); err != nil {
		metrics.AggregateUpdates.WithLabelValues("write_failed").Inc()
		return &domain.RemoteWriteError{Op: "update aggregate", Err: err}
	}
	metrics.AggregateUpdates.WithLabelValues("ok").Inc()

	a.logger.Debug("aggregate updated",
		"news_item_id", newsItemID,
		"total_ratings", total,
		"average", avg,
	)

	// Cached copies now carry an outdated average. The write already
	// happened, so retrying would count the rating twice.
	if err := a.cache.Clear(ctx); err != nil {
		a.logger.Warn("failed to invalidate cache after aggregate update",
			"news_item_id", newsItemID,
			"error", err,
		)
	}

	return nil
}
