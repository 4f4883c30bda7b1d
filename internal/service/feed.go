package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"news_verifier/internal/domain"
	"news_verifier/internal/metrics"
)

// FeedRequest selects the page a Load should bring into the cache.
type FeedRequest struct {
	ForceRefresh bool
	CategoryID   *int64
	PageSize     int
	Offset       int
}

// FeedLoader decides between serving the local cache and fetching from the
// backend. Readers observe the cache stream; Load only fills it.
type FeedLoader struct {
	news       NewsRepository
	cache      NewsCache
	categories CategoryRepository
	ratings    RatingRepository
	pageSize   int
	window     time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewFeedLoader(
	news NewsRepository,
	cache NewsCache,
	categories CategoryRepository,
	ratings RatingRepository,
	pageSize int,
	window time.Duration,
	logger *slog.Logger,
) *FeedLoader {
	return &FeedLoader{
		news:       news,
		cache:      cache,
		categories: categories,
		ratings:    ratings,
		pageSize:   pageSize,
		window:     window,
		now:        time.Now,
		logger:     logger,
	}
}

// Load refreshes the cache from the backend when forced or when the cache is
// stale. An empty page or a failed fetch leaves the cache as it was.
func (l *FeedLoader) Load(ctx context.Context, req FeedRequest) error {
	if !req.ForceRefresh {
		stale, err := l.cache.IsStale(ctx)
		if err != nil {
			return fmt.Errorf("check cache age: %w", err)
		}
		if !stale {
			metrics.FeedLoads.WithLabelValues("cache").Inc()
			l.logger.Debug("serving feed from cache")
			return nil
		}
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = l.pageSize
	}

	items, err := l.news.FetchPage(ctx, domain.PageQuery{
		CategoryID: req.CategoryID,
		Limit:      limit,
		Offset:     req.Offset,
	})
	if err != nil {
		metrics.FeedLoads.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch news page: %w", err)
	}

	if len(items) == 0 {
		metrics.FeedLoads.WithLabelValues("empty").Inc()
		l.logger.Warn("backend returned no news items, keeping cache")
		return nil
	}

	if req.ForceRefresh {
		if err := l.cache.Clear(ctx); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}

	if err := l.cache.UpsertMany(ctx, items); err != nil {
		return fmt.Errorf("cache news page: %w", err)
	}

	metrics.FeedLoads.WithLabelValues("remote").Inc()
	l.logger.Info("feed loaded from backend",
		"count", len(items),
		"offset", req.Offset,
		"forced", req.ForceRefresh,
	)
	return nil
}

// Refresh forces a reload of the first page.
func (l *FeedLoader) Refresh(ctx context.Context, categoryID *int64) error {
	return l.Load(ctx, FeedRequest{ForceRefresh: true, CategoryID: categoryID, PageSize: l.pageSize})
}

func (l *FeedLoader) ClearCache(ctx context.Context) error {
	if err := l.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	l.logger.Info("cache cleared")
	return nil
}

// EvictExpired drops cached rows older than the staleness window.
func (l *FeedLoader) EvictExpired(ctx context.Context) (int64, error) {
	cutoff := l.now().Add(-l.window)
	n, err := l.cache.EvictExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict expired cache: %w", err)
	}
	if n > 0 {
		l.logger.Info("evicted expired cache rows", "count", n)
	}
	return n, nil
}

// Item returns one news item, from the cache when present.
func (l *FeedLoader) Item(ctx context.Context, id int64) (*domain.NewsItem, error) {
	cached, err := l.cache.Get(ctx, id)
	if err == nil {
		return &cached.NewsItem, nil
	}
	if !errors.Is(err, domain.ErrNewsItemNotFound) {
		return nil, fmt.Errorf("read cached news item: %w", err)
	}

	item, err := l.news.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get news item %d: %w", id, err)
	}

	if err := l.cache.UpsertMany(ctx, []domain.NewsItem{*item}); err != nil {
		l.logger.Warn("failed to cache news item", "news_item_id", id, "error", err)
	}

	return item, nil
}

func (l *FeedLoader) Categories(ctx context.Context) ([]domain.Category, error) {
	categories, err := l.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (l *FeedLoader) Ratings(ctx context.Context, newsItemID int64) ([]domain.RatingItem, error) {
	ratings, err := l.ratings.ListByNewsItem(ctx, newsItemID)
	if err != nil {
		return nil, fmt.Errorf("list ratings for news item %d: %w", newsItemID, err)
	}
	return ratings, nil
}

// Stats returns the rating distribution per category.
func (l *FeedLoader) Stats(ctx context.Context) ([]domain.CategoryRatingStats, error) {
	stats, err := l.ratings.StatsByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("rating stats: %w", err)
	}
	return stats, nil
}
