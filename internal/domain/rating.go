package domain

import (
	"math"
	"time"
)

// snapULPs bounds how far below an integer a scaled value may sit and still
// count as that integer. Multiplying by 100 leaves 0.29 at 28.999999999999996,
// one ulp short of 29; genuine fractions like 0.289999999995 are millions of
// ulps away and are truncated.
const snapULPs = 4

// Canonicalize truncates a reliability value to two decimals, rounding
// toward zero: 0.567 -> 0.56, 0.004 -> 0.
func Canonicalize(v float64) float64 {
	scaled := v * 100
	whole := math.Floor(scaled)
	if next := whole + 1; next-scaled <= snapULPs*ulp(scaled) {
		whole = next
	}
	return whole / 100
}

func ulp(x float64) float64 {
	x = math.Abs(x)
	return math.Nextafter(x, math.Inf(1)) - x
}

// ValidRating reports whether v lies in [0,1].
func ValidRating(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// NextAverage folds one more rating into a running average and returns the
// new total and the truncated mean.
func NextAverage(total int, avg, value float64) (int, float64) {
	newTotal := total + 1
	newAvg := (float64(total)*avg + value) / float64(newTotal)
	return newTotal, Canonicalize(newAvg)
}

// RatingSubmission is a user's rating of a news item as entered.
type RatingSubmission struct {
	NewsItemID    int64
	UserProfileID int64
	Value         float64
	Comment       string
	Completed     bool
}

// RatingItem is a delivered rating row.
type RatingItem struct {
	ID                       int64     `db:"rating_item_id" json:"rating_item_id"`
	NewsItemID               int64     `db:"news_item_id" json:"news_item_id"`
	UserProfileID            int64     `db:"user_profile_id" json:"user_profile_id"`
	AssignedReliabilityScore float64   `db:"assigned_reliability_score" json:"assigned_reliability_score"`
	CommentText              string    `db:"comment_text" json:"comment_text"`
	RatedAt                  time.Time `db:"rating_date" json:"rating_date"`
	IsCompleted              bool      `db:"is_completed" json:"is_completed"`
}

// PendingRatingSubmission is a rating waiting in the local queue.
// UserProfileID is 0 when the profile was not resolved at enqueue time.
type PendingRatingSubmission struct {
	ID            int64     `db:"id"`
	NewsItemID    int64     `db:"news_item_id"`
	UserProfileID int64     `db:"user_profile_id"`
	Value         float64   `db:"reliability_score"`
	Comment       string    `db:"comment_text"`
	Completed     bool      `db:"completed"`
	QueuedAt      time.Time `db:"queued_at"`
	// RatingID is set once the rating row exists remotely and only the
	// item's aggregate is still owed.
	RatingID int64 `db:"rating_item_id"`
}

// Outcome is the tri-state result of a submission.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeDelivered
	OutcomeQueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeQueued:
		return "queued"
	default:
		return "failed"
	}
}

// Message is the user-facing text for the outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeDelivered:
		return "submitted"
	case OutcomeQueued:
		return "saved - will send when back online"
	default:
		return "could not save"
	}
}

// CategoryRatingStats aggregates delivered ratings for one category.
type CategoryRatingStats struct {
	CategoryID   int64   `db:"category_id" json:"category_id"`
	CategoryName string  `db:"name" json:"name"`
	RatingCount  int     `db:"rating_count" json:"rating_count"`
	AverageScore float64 `db:"average_score" json:"average_score"`
}
