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

type ProfileStore struct {
	db *sqlx.DB
}

func NewProfileStore(db *sqlx.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// FindByAuthID returns the first profile linked to the identity.
func (s *ProfileStore) FindByAuthID(ctx context.Context, authID string) (*domain.UserProfile, error) {
	query, args, err := psql.Select("user_profile_id", "user_auth_id", "display_name").
		From("user_profiles").
		Where(sq.Eq{"user_auth_id": authID}).
		OrderBy("user_profile_id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build profile query: %w", err)
	}

	var profile domain.UserProfile
	err = s.db.GetContext(ctx, &profile, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &profile, nil
}

type CategoryStore struct {
	db *sqlx.DB
}

func NewCategoryStore(db *sqlx.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) List(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := s.db.SelectContext(ctx, &categories,
		"SELECT category_id, name FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	return categories, nil
}
