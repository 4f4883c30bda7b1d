package local

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"news_verifier/internal/domain"
)

// DefaultStalenessWindow bounds the age of the oldest cached row.
const DefaultStalenessWindow = 30 * time.Minute

const cachedColumns = `
	news_item_id, user_profile_id, title, short_description, long_description,
	image_url, category_id, author_type, author_institution,
	average_reliability_score, total_ratings, is_fake, is_verified_source,
	is_verified_data, is_recognized_author, is_manipulated,
	original_source_url, publication_date, added_to_app_date, cached_at`

type cachedRow struct {
	ID                      int64   `db:"news_item_id"`
	UserProfileID           int64   `db:"user_profile_id"`
	Title                   string  `db:"title"`
	ShortDescription        string  `db:"short_description"`
	LongDescription         string  `db:"long_description"`
	ImageURL                string  `db:"image_url"`
	CategoryID              int64   `db:"category_id"`
	AuthorType              string  `db:"author_type"`
	AuthorInstitution       string  `db:"author_institution"`
	AverageReliabilityScore float64 `db:"average_reliability_score"`
	TotalRatings            int     `db:"total_ratings"`
	IsFake                  bool    `db:"is_fake"`
	IsVerifiedSource        bool    `db:"is_verified_source"`
	IsVerifiedData          bool    `db:"is_verified_data"`
	IsRecognizedAuthor      bool    `db:"is_recognized_author"`
	IsManipulated           bool    `db:"is_manipulated"`
	OriginalSourceURL       string  `db:"original_source_url"`
	PublishedAt             int64   `db:"publication_date"`
	AddedAt                 int64   `db:"added_to_app_date"`
	CachedAt                int64   `db:"cached_at"`
}

func newCachedRow(n domain.NewsItem, cachedAt time.Time) cachedRow {
	return cachedRow{
		ID:                      n.ID,
		UserProfileID:           n.UserProfileID,
		Title:                   n.Title,
		ShortDescription:        n.ShortDescription,
		LongDescription:         n.LongDescription,
		ImageURL:                n.ImageURL,
		CategoryID:              n.CategoryID,
		AuthorType:              n.AuthorType,
		AuthorInstitution:       n.AuthorInstitution,
		AverageReliabilityScore: n.AverageReliabilityScore,
		TotalRatings:            n.TotalRatings,
		IsFake:                  n.IsFake,
		IsVerifiedSource:        n.IsVerifiedSource,
		IsVerifiedData:          n.IsVerifiedData,
		IsRecognizedAuthor:      n.IsRecognizedAuthor,
		IsManipulated:           n.IsManipulated,
		OriginalSourceURL:       n.OriginalSourceURL,
		PublishedAt:             toMillis(n.PublishedAt),
		AddedAt:                 toMillis(n.AddedAt),
		CachedAt:                toMillis(cachedAt),
	}
}

func (r cachedRow) toDomain() domain.CachedNewsItem {
	return domain.CachedNewsItem{
		NewsItem: domain.NewsItem{
			ID:                      r.ID,
			UserProfileID:           r.UserProfileID,
			Title:                   r.Title,
			ShortDescription:        r.ShortDescription,
			LongDescription:         r.LongDescription,
			ImageURL:                r.ImageURL,
			CategoryID:              r.CategoryID,
			AuthorType:              r.AuthorType,
			AuthorInstitution:       r.AuthorInstitution,
			AverageReliabilityScore: r.AverageReliabilityScore,
			TotalRatings:            r.TotalRatings,
			IsFake:                  r.IsFake,
			IsVerifiedSource:        r.IsVerifiedSource,
			IsVerifiedData:          r.IsVerifiedData,
			IsRecognizedAuthor:      r.IsRecognizedAuthor,
			IsManipulated:           r.IsManipulated,
			OriginalSourceURL:       r.OriginalSourceURL,
			PublishedAt:             fromMillis(r.PublishedAt),
			AddedAt:                 fromMillis(r.AddedAt),
		},
		CachedAt: fromMillis(r.CachedAt),
	}
}

// Cache is the local read cache of news items. Every mutation re-emits the
// full contents to all ReadAll subscribers.
type Cache struct {
	db     *sqlx.DB
	window time.Duration
	now    func() time.Time
	logger *slog.Logger

	// mu serializes snapshot delivery so subscribers never observe an older
	// snapshot after a newer one.
	mu   sync.Mutex
	subs map[chan []domain.CachedNewsItem]struct{}
}

func NewCache(db *sqlx.DB, window time.Duration, logger *slog.Logger) *Cache {
	if window <= 0 {
		window = DefaultStalenessWindow
	}
	return &Cache{
		db:     db,
		window: window,
		now:    time.Now,
		logger: logger.With("component", "news_cache"),
		subs:   make(map[chan []domain.CachedNewsItem]struct{}),
	}
}

// UpsertMany stores items, replacing rows with the same id, all stamped with
// the current time.
func (c *Cache) UpsertMany(ctx context.Context, items []domain.NewsItem) error {
	if len(items) == 0 {
		return nil
	}

	cachedAt := c.now()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin cache upsert", Err: err}
	}

	for _, item := range items {
		_, err := tx.NamedExecContext(ctx, `
			INSERT OR REPLACE INTO cached_news_items (`+cachedColumns+`)
			VALUES (
				:news_item_id, :user_profile_id, :title, :short_description, :long_description,
				:image_url, :category_id, :author_type, :author_institution,
				:average_reliability_score, :total_ratings, :is_fake, :is_verified_source,
				:is_verified_data, :is_recognized_author, :is_manipulated,
				:original_source_url, :publication_date, :added_to_app_date, :cached_at
			)`, newCachedRow(item, cachedAt))
		if err != nil {
			_ = tx.Rollback()
			return &domain.StorageError{Op: "upsert cached news item", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit cache upsert", Err: err}
	}

	c.notify(ctx)
	return nil
}

// List returns the current contents, newest publication first.
func (c *Cache) List(ctx context.Context) ([]domain.CachedNewsItem, error) {
	var rows []cachedRow
	err := c.db.SelectContext(ctx, &rows,
		"SELECT "+cachedColumns+" FROM cached_news_items ORDER BY publication_date DESC, news_item_id DESC")
	if err != nil {
		return nil, &domain.StorageError{Op: "list cached news items", Err: err}
	}

	items := make([]domain.CachedNewsItem, len(rows))
	for i, r := range rows {
		items[i] = r.toDomain()
	}
	return items, nil
}

// ReadAll streams the cache contents: the current snapshot first, then the
// full contents again after every mutation. Slow readers only see the latest
// snapshot. The channel is closed when ctx is done.
func (c *Cache) ReadAll(ctx context.Context) (<-chan []domain.CachedNewsItem, error) {
	ch := make(chan []domain.CachedNewsItem, 1)

	c.mu.Lock()
	items, err := c.List(ctx)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.subs[ch] = struct{}{}
	ch <- items
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subs, ch)
		close(ch)
		c.mu.Unlock()
	}()

	return ch, nil
}

func (c *Cache) notify(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subs) == 0 {
		return
	}

	// The write already committed; deliver even if the caller gave up.
	items, err := c.List(context.WithoutCancel(ctx))
	if err != nil {
		c.logger.Error("failed to read cache snapshot", "error", err)
		return
	}

	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- items
	}
}

func (c *Cache) Get(ctx context.Context, id int64) (*domain.CachedNewsItem, error) {
	var row cachedRow
	err := c.db.GetContext(ctx, &row,
		"SELECT "+cachedColumns+" FROM cached_news_items WHERE news_item_id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNewsItemNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get cached news item", Err: err}
	}

	item := row.toDomain()
	return &item, nil
}

// IsStale is true when the cache is empty or its oldest row has outlived the
// staleness window.
func (c *Cache) IsStale(ctx context.Context) (bool, error) {
	var oldest sql.NullInt64
	if err := c.db.GetContext(ctx, &oldest, "SELECT MIN(cached_at) FROM cached_news_items"); err != nil {
		return false, &domain.StorageError{Op: "read cache age", Err: err}
	}
	if !oldest.Valid {
		return true, nil
	}

	age := c.now().Sub(fromMillis(oldest.Int64))
	return age >= c.window, nil
}

func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM cached_news_items"); err != nil {
		return &domain.StorageError{Op: "clear cache", Err: err}
	}
	c.notify(ctx)
	return nil
}

// EvictExpired deletes rows cached before cutoff and reports how many went.
func (c *Cache) EvictExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM cached_news_items WHERE cached_at < ?", toMillis(cutoff))
	if err != nil {
		return 0, &domain.StorageError{Op: "evict expired cache rows", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, &domain.StorageError{Op: "evict expired cache rows", Err: err}
	}
	if n > 0 {
		c.notify(ctx)
	}
	return n, nil
}

func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM cached_news_items"); err != nil {
		return 0, &domain.StorageError{Op: "count cached news items", Err: err}
	}
	return n, nil
}
