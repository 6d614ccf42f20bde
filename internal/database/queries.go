// internal/database/queries.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"storywatch/internal/story"
)

var _ story.Store = (*DB)(nil)

const articleColumns = `a.id, a.url, a.title, a.summary, a.content, a.source_name,
        a.published_at, a.image_url, a.created_at`

const storyColumns = `id, owner_user_id, keyword, source_article_id, status, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*story.Article, error) {
	var a story.Article
	var title, summary, content, source, image sql.NullString
	var published sql.NullTime
	err := row.Scan(
		&a.ID, &a.URL, &title, &summary, &content, &source,
		&published, &image, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Title = title.String
	a.Summary = summary.String
	a.Content = content.String
	a.SourceName = source.String
	a.ImageURL = image.String
	if published.Valid {
		a.PublishedAt = published.Time.UTC()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func scanStory(row rowScanner) (*story.TrackedStory, error) {
	var s story.TrackedStory
	var seed sql.NullString
	var status string
	if err := row.Scan(&s.ID, &s.OwnerUserID, &s.Keyword, &seed, &status, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.SourceArticleID = seed.String
	s.Status = story.Status(status)
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

// FindArticleByURL looks an article up by its exact URL.
func (db *DB) FindArticleByURL(ctx context.Context, url string) (*story.Article, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles a WHERE a.url = ?`, url)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, story.ErrNotFound
	}
	return a, err
}

// GetArticle retrieves an article by ID.
func (db *DB) GetArticle(ctx context.Context, id string) (*story.Article, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles a WHERE a.id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, story.ErrNotFound
	}
	return a, err
}

// InsertArticle stores a new article. A URL that already exists yields
// story.ErrStoreConflict.
func (db *DB) InsertArticle(ctx context.Context, raw story.RawArticle) (*story.Article, error) {
	a := &story.Article{
		ID:          uuid.NewString(),
		URL:         raw.URL,
		Title:       raw.Title,
		Summary:     raw.Summary,
		Content:     raw.Content,
		SourceName:  raw.SourceName,
		PublishedAt: raw.PublishedAt.UTC(),
		ImageURL:    raw.ImageURL,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO articles (id, url, title, summary, content, source_name, published_at, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.URL, nullString(a.Title), nullString(a.Summary), nullString(a.Content),
		nullString(a.SourceName), nullTime(a.PublishedAt), nullString(a.ImageURL), a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, story.ErrStoreConflict
		}
		return nil, fmt.Errorf("inserting article: %w", err)
	}
	return a, nil
}

// CreateStory persists a new tracked story.
func (db *DB) CreateStory(ctx context.Context, s *story.TrackedStory) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO tracked_stories (id, owner_user_id, keyword, source_article_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.OwnerUserID, s.Keyword, nullString(s.SourceArticleID), string(s.Status), s.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return story.ErrStoreConflict
		}
		return fmt.Errorf("inserting story: %w", err)
	}
	return nil
}

// GetStory retrieves a story regardless of its status.
func (db *DB) GetStory(ctx context.Context, id string) (*story.TrackedStory, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM tracked_stories WHERE id = ?`, id)
	s, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, story.ErrNotFound
	}
	return s, err
}

// ListStoriesByOwner returns the owner's active stories, newest first.
func (db *DB) ListStoriesByOwner(ctx context.Context, ownerUserID string) ([]story.TrackedStory, error) {
	return db.listStories(ctx,
		`SELECT `+storyColumns+` FROM tracked_stories
		WHERE owner_user_id = ? AND status = 'ACTIVE'
		ORDER BY created_at DESC, id`,
		ownerUserID,
	)
}

// ListActiveStories returns every active story, oldest first.
func (db *DB) ListActiveStories(ctx context.Context) ([]story.TrackedStory, error) {
	return db.listStories(ctx,
		`SELECT `+storyColumns+` FROM tracked_stories
		WHERE status = 'ACTIVE'
		ORDER BY created_at, id`,
	)
}

func (db *DB) listStories(ctx context.Context, query string, args ...any) ([]story.TrackedStory, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []story.TrackedStory
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, *s)
	}

	return stories, rows.Err()
}

// MarkStoryDeleted flips an active story owned by ownerUserID to DELETED.
// It reports whether a row changed.
func (db *DB) MarkStoryDeleted(ctx context.Context, ownerUserID, storyID string) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE tracked_stories SET status = 'DELETED'
		WHERE id = ? AND owner_user_id = ? AND status = 'ACTIVE'`,
		storyID, ownerUserID,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// LinkStoryArticle attaches an article to a story. Linking an existing pair
// is a no-op that reports false.
func (db *DB) LinkStoryArticle(ctx context.Context, storyID, articleID string, linkedAt time.Time) (bool, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO story_article_links (story_id, article_id, linked_at)
		VALUES (?, ?, ?)
		ON CONFLICT(story_id, article_id) DO NOTHING`,
		storyID, articleID, linkedAt.UTC(),
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ListStoryArticles returns the story's articles, most recently linked first.
func (db *DB) ListStoryArticles(ctx context.Context, storyID string) ([]story.Article, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+articleColumns+`
		FROM story_article_links l
		JOIN articles a ON a.id = l.article_id
		WHERE l.story_id = ?
		ORDER BY l.linked_at DESC, a.published_at DESC, l.id DESC`,
		storyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []story.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}

	return articles, rows.Err()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
