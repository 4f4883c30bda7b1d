package local

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_ratings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	news_item_id INTEGER NOT NULL,
	user_profile_id INTEGER NOT NULL DEFAULT 0,
	reliability_score REAL NOT NULL,
	comment_text TEXT NOT NULL DEFAULT '',
	completed INTEGER NOT NULL DEFAULT 0,
	queued_at INTEGER NOT NULL,
	rating_item_id INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cached_news_items (
	news_item_id INTEGER PRIMARY KEY,
	user_profile_id INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL,
	short_description TEXT NOT NULL DEFAULT '',
	long_description TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	category_id INTEGER NOT NULL DEFAULT 0,
	author_type TEXT NOT NULL DEFAULT '',
	author_institution TEXT NOT NULL DEFAULT '',
	average_reliability_score REAL NOT NULL DEFAULT 0,
	total_ratings INTEGER NOT NULL DEFAULT 0,
	is_fake INTEGER NOT NULL DEFAULT 0,
	is_verified_source INTEGER NOT NULL DEFAULT 0,
	is_verified_data INTEGER NOT NULL DEFAULT 0,
	is_recognized_author INTEGER NOT NULL DEFAULT 0,
	is_manipulated INTEGER NOT NULL DEFAULT 0,
	original_source_url TEXT NOT NULL DEFAULT '',
	publication_date INTEGER NOT NULL DEFAULT 0,
	added_to_app_date INTEGER NOT NULL DEFAULT 0,
	cached_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cached_news_items_cached_at ON cached_news_items (cached_at);
CREATE INDEX IF NOT EXISTS idx_cached_news_items_publication_date ON cached_news_items (publication_date DESC);
`

// Open opens the device database at path and creates both tables.
// The pool is limited to a single connection so SQLite serializes every
// statement issued by the queue and the cache.
func Open(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize local schema: %w", err)
	}
	if err := addRatingItemColumn(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade local schema: %w", err)
	}

	return db, nil
}

// addRatingItemColumn upgrades queues created before pending rows could
// remember their remote rating id.
func addRatingItemColumn(db *sqlx.DB) error {
	var n int
	err := db.Get(&n, "SELECT COUNT(*) FROM pragma_table_info('pending_ratings') WHERE name = 'rating_item_id'")
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = db.Exec("ALTER TABLE pending_ratings ADD COLUMN rating_item_id INTEGER NOT NULL DEFAULT 0")
	return err
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
