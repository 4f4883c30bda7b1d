package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"news_verifier/internal/domain"
)

type NewsRepository interface {
	FetchPage(ctx context.Context, q domain.PageQuery) ([]domain.NewsItem, error)
	GetByID(ctx context.Context, id int64) (*domain.NewsItem, error)
	UpdateAggregate(ctx context.Context, id int64, totalRatings int, average float64) error
}

type RatingRepository interface {
	Insert(ctx context.Context, rating *domain.RatingItem) error
	ListByNewsItem(ctx context.Context, newsItemID int64) ([]domain.RatingItem, error)
	StatsByCategory(ctx context.Context) ([]domain.CategoryRatingStats, error)
}

type ProfileRepository interface {
	FindByAuthID(ctx context.Context, authID string) (*domain.UserProfile, error)
}

type CategoryRepository interface {
	List(ctx context.Context) ([]domain.Category, error)
}

type IdentityProvider interface {
	CurrentIdentity() (string, bool)
}

type PendingQueue interface {
	Enqueue(ctx context.Context, p *domain.PendingRatingSubmission) error
	ListAll(ctx context.Context) ([]domain.PendingRatingSubmission, error)
	Remove(ctx context.Context, p domain.PendingRatingSubmission) error
	MarkInserted(ctx context.Context, p domain.PendingRatingSubmission, ratingID int64) error
	Count(ctx context.Context) (int, error)
}

type NewsCache interface {
	UpsertMany(ctx context.Context, items []domain.NewsItem) error
	Get(ctx context.Context, id int64) (*domain.CachedNewsItem, error)
	IsStale(ctx context.Context) (bool, error)
	Clear(ctx context.Context) error
	EvictExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type Connectivity interface {
	Online() bool
	Subscribe(ctx context.Context) <-chan bool
}

type Publisher interface {
	PublishRating(ctx context.Context, rating *domain.RatingItem) error
	Close() error
}
