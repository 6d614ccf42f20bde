// Package postgres implements the story store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"storywatch/internal/story"
)

// uniqueViolation is the SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// DBTX is the subset of *pgxpool.Pool the store uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store is a story.Store backed by PostgreSQL. Several engine instances may
// share one database; uniqueness is enforced by constraints.
type Store struct {
	db DBTX
}

var _ story.Store = (*Store)(nil)

func New(db DBTX) *Store {
	return &Store{db: db}
}

// Connect opens a pool and verifies it.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

const (
	selectArticle = `SELECT a.id::text, a.url, a.title, a.summary, a.content, a.source_name, a.published_at, a.image_url, a.created_at FROM articles a`
	selectStory   = `SELECT id::text, owner_user_id, keyword, source_article_id::text, status, created_at FROM tracked_stories`
)

func scanArticle(row pgx.Row) (*story.Article, error) {
	var a story.Article
	var title, summary, content, source, image pgtype.Text
	var published pgtype.Timestamptz
	if err := row.Scan(&a.ID, &a.URL, &title, &summary, &content, &source, &published, &image, &a.CreatedAt); err != nil {
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

func scanStory(row pgx.Row) (*story.TrackedStory, error) {
	var s story.TrackedStory
	var seed pgtype.Text
	var status string
	if err := row.Scan(&s.ID, &s.OwnerUserID, &s.Keyword, &seed, &status, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.SourceArticleID = seed.String
	s.Status = story.Status(status)
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func (s *Store) FindArticleByURL(ctx context.Context, url string) (*story.Article, error) {
	a, err := scanArticle(s.db.QueryRow(ctx, selectArticle+` WHERE a.url = $1`, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, story.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding article by url: %w", err)
	}
	return a, nil
}

func (s *Store) GetArticle(ctx context.Context, id string) (*story.Article, error) {
	if !validID(id) {
		return nil, story.ErrNotFound
	}
	a, err := scanArticle(s.db.QueryRow(ctx, selectArticle+` WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, story.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting article: %w", err)
	}
	return a, nil
}

func (s *Store) InsertArticle(ctx context.Context, raw story.RawArticle) (*story.Article, error) {
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

	_, err := s.db.Exec(ctx,
		`INSERT INTO articles (id, url, title, summary, content, source_name, published_at, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.URL, text(a.Title), text(a.Summary), text(a.Content), text(a.SourceName),
		timestamptz(a.PublishedAt), text(a.ImageURL), a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, story.ErrStoreConflict
		}
		return nil, fmt.Errorf("inserting article: %w", err)
	}
	return a, nil
}

func (s *Store) CreateStory(ctx context.Context, st *story.TrackedStory) error {
	var seed any
	if st.SourceArticleID != "" {
		seed = st.SourceArticleID
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO tracked_stories (id, owner_user_id, keyword, source_article_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		st.ID, st.OwnerUserID, st.Keyword, seed, string(st.Status), st.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return story.ErrStoreConflict
		}
		return fmt.Errorf("inserting story: %w", err)
	}
	return nil
}

func (s *Store) GetStory(ctx context.Context, id string) (*story.TrackedStory, error) {
	if !validID(id) {
		return nil, story.ErrNotFound
	}
	st, err := scanStory(s.db.QueryRow(ctx, selectStory+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, story.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting story: %w", err)
	}
	return st, nil
}

func (s *Store) ListStoriesByOwner(ctx context.Context, ownerUserID string) ([]story.TrackedStory, error) {
	return s.listStories(ctx,
		selectStory+` WHERE owner_user_id = $1 AND status = 'ACTIVE' ORDER BY created_at DESC, id`,
		ownerUserID)
}

func (s *Store) ListActiveStories(ctx context.Context) ([]story.TrackedStory, error) {
	return s.listStories(ctx,
		selectStory+` WHERE status = 'ACTIVE' ORDER BY created_at, id`)
}

func (s *Store) listStories(ctx context.Context, query string, args ...any) ([]story.TrackedStory, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing stories: %w", err)
	}
	defer rows.Close()

	var stories []story.TrackedStory
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning story: %w", err)
		}
		stories = append(stories, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing stories: %w", err)
	}
	return stories, nil
}

func (s *Store) MarkStoryDeleted(ctx context.Context, ownerUserID, storyID string) (bool, error) {
	if !validID(storyID) {
		return false, nil
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE tracked_stories SET status = 'DELETED'
		WHERE id = $1 AND owner_user_id = $2 AND status = 'ACTIVE'`,
		storyID, ownerUserID)
	if err != nil {
		return false, fmt.Errorf("deleting story: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) LinkStoryArticle(ctx context.Context, storyID, articleID string, linkedAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO story_article_links (story_id, article_id, linked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (story_id, article_id) DO NOTHING`,
		storyID, articleID, linkedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("linking article: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListStoryArticles(ctx context.Context, storyID string) ([]story.Article, error) {
	if !validID(storyID) {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		selectArticle+`
		JOIN story_article_links l ON l.article_id = a.id
		WHERE l.story_id = $1
		ORDER BY l.linked_at DESC, a.published_at DESC NULLS LAST`,
		storyID)
	if err != nil {
		return nil, fmt.Errorf("listing story articles: %w", err)
	}
	defer rows.Close()

	var articles []story.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing story articles: %w", err)
	}
	return articles, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// validID reports whether id can be a uuid column value. Anything else can
// never match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
