package local

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"news_verifier/internal/domain"
)

type pendingRow struct {
	ID            int64   `db:"id"`
	NewsItemID    int64   `db:"news_item_id"`
	UserProfileID int64   `db:"user_profile_id"`
	Value         float64 `db:"reliability_score"`
	Comment       string  `db:"comment_text"`
	Completed     bool    `db:"completed"`
	QueuedAt      int64   `db:"queued_at"`
	RatingID      int64   `db:"rating_item_id"`
}

func (r pendingRow) toDomain() domain.PendingRatingSubmission {
	return domain.PendingRatingSubmission{
		ID:            r.ID,
		NewsItemID:    r.NewsItemID,
		UserProfileID: r.UserProfileID,
		Value:         r.Value,
		Comment:       r.Comment,
		Completed:     r.Completed,
		QueuedAt:      fromMillis(r.QueuedAt),
		RatingID:      r.RatingID,
	}
}

// Queue is the durable store of rating submissions awaiting delivery.
type Queue struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewQueue(db *sqlx.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

// Enqueue appends p and sets its generated ID and QueuedAt.
func (q *Queue) Enqueue(ctx context.Context, p *domain.PendingRatingSubmission) error {
	queuedAt := q.now()

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO pending_ratings (news_item_id, user_profile_id, reliability_score, comment_text, completed, queued_at, rating_item_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.NewsItemID, p.UserProfileID, p.Value, p.Comment, p.Completed, toMillis(queuedAt), p.RatingID,
	)
	if err != nil {
		return &domain.StorageError{Op: "enqueue pending rating", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return &domain.StorageError{Op: "enqueue pending rating", Err: err}
	}

	p.ID = id
	p.QueuedAt = fromMillis(toMillis(queuedAt))
	return nil
}

// ListAll returns every pending submission in insertion order.
func (q *Queue) ListAll(ctx context.Context) ([]domain.PendingRatingSubmission, error) {
	var rows []pendingRow
	err := q.db.SelectContext(ctx, &rows, `
		SELECT id, news_item_id, user_profile_id, reliability_score, comment_text, completed, queued_at, rating_item_id
		FROM pending_ratings
		ORDER BY id`)
	if err != nil {
		return nil, &domain.StorageError{Op: "list pending ratings", Err: err}
	}

	pending := make([]domain.PendingRatingSubmission, len(rows))
	for i, r := range rows {
		pending[i] = r.toDomain()
	}
	return pending, nil
}

// Remove deletes p. Removing an entry that is already gone is not an error.
func (q *Queue) Remove(ctx context.Context, p domain.PendingRatingSubmission) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM pending_ratings WHERE id = ?", p.ID); err != nil {
		return &domain.StorageError{Op: "remove pending rating", Err: err}
	}
	return nil
}

// MarkInserted records that p's rating row was stored remotely as ratingID,
// so a later replay only recomputes the aggregate.
func (q *Queue) MarkInserted(ctx context.Context, p domain.PendingRatingSubmission, ratingID int64) error {
	res, err := q.db.ExecContext(ctx, "UPDATE pending_ratings SET rating_item_id = ? WHERE id = ?", ratingID, p.ID)
	if err != nil {
		return &domain.StorageError{Op: "mark pending rating inserted", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &domain.StorageError{Op: "mark pending rating inserted", Err: fmt.Errorf("pending rating %d not found", p.ID)}
	}
	return nil
}

func (q *Queue) Count(ctx context.Context) (int, error) {
	var n int
	if err := q.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM pending_ratings"); err != nil {
		return 0, &domain.StorageError{Op: "count pending ratings", Err: err}
	}
	return n, nil
}
