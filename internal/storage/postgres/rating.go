package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"news_verifier/internal/domain"
)

type RatingStore struct {
	db *sqlx.DB
}

func NewRatingStore(db *sqlx.DB) *RatingStore {
	return &RatingStore{db: db}
}

// Insert writes a rating row and fills in the generated id and date.
func (s *RatingStore) Insert(ctx context.Context, rating *domain.RatingItem) error {
	query, args, err := psql.Insert("rating_items").
		Columns(
			"news_item_id",
			"user_profile_id",
			"assigned_reliability_score",
			"comment_text",
			"is_completed",
		).
		Values(
			rating.NewsItemID,
			rating.UserProfileID,
			rating.AssignedReliabilityScore,
			rating.CommentText,
			rating.IsCompleted,
		).
		Suffix("RETURNING rating_item_id, rating_date").
		ToSql()
	if err != nil {
		return fmt.Errorf("build rating insert: %w", err)
	}

	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&rating.ID, &rating.RatedAt); err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

func (s *RatingStore) ListByNewsItem(ctx context.Context, newsItemID int64) ([]domain.RatingItem, error) {
	query, args, err := psql.Select(ratingColumns...).
		From("rating_items").
		Where(sq.Eq{"news_item_id": newsItemID}).
		OrderBy("rating_date DESC", "rating_item_id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ratings query: %w", err)
	}

	var ratings []domain.RatingItem
	if err := s.db.SelectContext(ctx, &ratings, query, args...); err != nil {
		return nil, fmt.Errorf("select ratings: %w", err)
	}
	return ratings, nil
}

// StatsByCategory aggregates delivered ratings per category, most rated first.
func (s *RatingStore) StatsByCategory(ctx context.Context) ([]domain.CategoryRatingStats, error) {
	query := `
		SELECT c.category_id, c.name,
			COUNT(r.rating_item_id) AS rating_count,
			COALESCE(AVG(r.assigned_reliability_score), 0) AS average_score
		FROM categories c
		LEFT JOIN news_items n ON n.category_id = c.category_id
		LEFT JOIN rating_items r ON r.news_item_id = n.news_item_id
		GROUP BY c.category_id, c.name
		ORDER BY rating_count DESC, c.name`

	var stats []domain.CategoryRatingStats
	if err := s.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("select rating stats: %w", err)
	}
	return stats, nil
}
