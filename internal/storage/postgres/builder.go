package postgres

import sq "github.com/Masterminds/squirrel"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var newsColumns = []string{
	"news_item_id",
	"user_profile_id",
	"title",
	"short_description",
	"long_description",
	"image_url",
	"category_id",
	"author_type",
	"author_institution",
	"average_reliability_score",
	"total_ratings",
	"is_fake",
	"is_verified_source",
	"is_verified_data",
	"is_recognized_author",
	"is_manipulated",
	"original_source_url",
	"publication_date",
	"added_to_app_date",
}

var ratingColumns = []string{
	"rating_item_id",
	"news_item_id",
	"user_profile_id",
	"assigned_reliability_score",
	"comment_text",
	"rating_date",
	"is_completed",
}
