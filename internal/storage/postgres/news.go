package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"news_verifier/internal/domain"
)

type NewsStore struct {
	db *sqlx.DB
}

func NewNewsStore(db *sqlx.DB) *NewsStore {
	return &NewsStore{db: db}
}

// FetchPage returns one window of news items, newest publication first.
func (s *NewsStore) FetchPage(ctx context.Context, q domain.PageQuery) ([]domain.NewsItem, error) {
	b := psql.Select(newsColumns...).
		From("news_items").
		OrderBy("publication_date DESC", "news_item_id DESC")

	if q.CategoryID != nil {
		b = b.Where(sq.Eq{"category_id": *q.CategoryID})
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		b = b.Offset(uint64(q.Offset))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build news query: %w", err)
	}

	var items []domain.NewsItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("select news items: %w", err)
	}
	return items, nil
}

func (s *NewsStore) GetByID(ctx context.Context, id int64) (*domain.NewsItem, error) {
	query, args, err := psql.Select(newsColumns...).
		From("news_items").
		Where(sq.Eq{"news_item_id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build news query: %w", err)
	}

	var item domain.NewsItem
	err = s.db.GetContext(ctx, &item, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("news item %d: %w", id, domain.ErrNewsItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select news item %d: %w", id, err)
	}
	return &item, nil
}

// UpdateAggregate overwrites the rating aggregate of one item. It is a plain
// patch with no version check.
func (s *NewsStore) UpdateAggregate(ctx context.Context, id int64, totalRatings int, average float64) error {
	query, args, err := psql.Update("news_items").
		SetMap(map[string]interface{}{
			"total_ratings":             totalRatings,
			"average_reliability_score": average,
		}).
		Where(sq.Eq{"news_item_id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build aggregate update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update aggregate %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update aggregate %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update aggregate %d: %w", id, domain.ErrNewsItemNotFound)
	}
	return nil
}

// Ping reports whether the backend is reachable.
func (s *NewsStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
