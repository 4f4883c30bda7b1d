package domain

import "time"

// NewsItem is a news article under verification as stored by the backend.
type NewsItem struct {
	ID                      int64     `db:"news_item_id" json:"news_item_id"`
	UserProfileID           int64     `db:"user_profile_id" json:"user_profile_id"`
	Title                   string    `db:"title" json:"title"`
	ShortDescription        string    `db:"short_description" json:"short_description"`
	LongDescription         string    `db:"long_description" json:"long_description"`
	ImageURL                string    `db:"image_url" json:"image_url"`
	CategoryID              int64     `db:"category_id" json:"category_id"`
	AuthorType              string    `db:"author_type" json:"author_type"`
	AuthorInstitution       string    `db:"author_institution" json:"author_institution"`
	AverageReliabilityScore float64   `db:"average_reliability_score" json:"average_reliability_score"`
	TotalRatings            int       `db:"total_ratings" json:"total_ratings"`
	IsFake                  bool      `db:"is_fake" json:"is_fake"`
	IsVerifiedSource        bool      `db:"is_verified_source" json:"is_verified_source"`
	IsVerifiedData          bool      `db:"is_verified_data" json:"is_verified_data"`
	IsRecognizedAuthor      bool      `db:"is_recognized_author" json:"is_recognized_author"`
	IsManipulated           bool      `db:"is_manipulated" json:"is_manipulated"`
	OriginalSourceURL       string    `db:"original_source_url" json:"original_source_url"`
	PublishedAt             time.Time `db:"publication_date" json:"publication_date"`
	AddedAt                 time.Time `db:"added_to_app_date" json:"added_to_app_date"`
}

// CachedNewsItem is the local projection of a NewsItem.
type CachedNewsItem struct {
	NewsItem
	CachedAt time.Time
}

// DaysSince reports whole days elapsed between publication and now.
func (n NewsItem) DaysSince(now time.Time) int {
	if n.PublishedAt.IsZero() || now.Before(n.PublishedAt) {
		return 0
	}
	return int(now.Sub(n.PublishedAt).Hours() / 24)
}

type Category struct {
	ID   int64  `db:"category_id" json:"category_id"`
	Name string `db:"name" json:"name"`
}

// UserProfile maps an authenticated identity to the internal profile id
// used as the foreign key for ratings.
type UserProfile struct {
	ID          int64  `db:"user_profile_id"`
	AuthID      string `db:"user_auth_id"`
	DisplayName string `db:"display_name"`
}

// PageQuery selects one window of the remote news feed.
type PageQuery struct {
	CategoryID *int64
	Limit      int
	Offset     int
}
