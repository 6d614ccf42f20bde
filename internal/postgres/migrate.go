package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    id UUID PRIMARY KEY,
    url TEXT NOT NULL UNIQUE,
    title TEXT,
    summary TEXT,
    content TEXT,
    source_name TEXT,
    published_at TIMESTAMPTZ,
    image_url TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tracked_stories (
    id UUID PRIMARY KEY,
    owner_user_id TEXT NOT NULL,
    keyword TEXT NOT NULL,
    source_article_id UUID REFERENCES articles(id),
    status TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'DELETED')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS story_article_links (
    story_id UUID NOT NULL REFERENCES tracked_stories(id) ON DELETE CASCADE,
    article_id UUID NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    linked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (story_id, article_id)
);

CREATE INDEX IF NOT EXISTS idx_tracked_stories_owner_status ON tracked_stories (owner_user_id, status);
CREATE INDEX IF NOT EXISTS idx_tracked_stories_status_created ON tracked_stories (status, created_at);
CREATE INDEX IF NOT EXISTS idx_story_article_links_story_linked ON story_article_links (story_id, linked_at DESC);
`

// Migrate creates the tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
