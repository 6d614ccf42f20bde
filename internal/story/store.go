package story

import (
	"context"
	"time"
)

// ArticleStore persists canonical articles keyed by URL.
type ArticleStore interface {
	// FindArticleByURL returns ErrNotFound when no article has the URL.
	FindArticleByURL(ctx context.Context, url string) (*Article, error)

	// GetArticle returns ErrNotFound when the ID is unknown.
	GetArticle(ctx context.Context, id string) (*Article, error)

	// InsertArticle stores a new article and assigns its ID. It must return
	// ErrStoreConflict when another row already holds the URL.
	InsertArticle(ctx context.Context, raw RawArticle) (*Article, error)
}

// StoryStore persists tracked stories and their article links.
type StoryStore interface {
	CreateStory(ctx context.Context, s *TrackedStory) error

	// GetStory returns the story regardless of status, or ErrNotFound.
	GetStory(ctx context.Context, id string) (*TrackedStory, error)

	// ListStoriesByOwner returns the owner's active stories, newest first.
	ListStoriesByOwner(ctx context.Context, ownerUserID string) ([]TrackedStory, error)

	// ListActiveStories returns every active story.
	ListActiveStories(ctx context.Context) ([]TrackedStory, error)

	// MarkStoryDeleted flips an active story owned by ownerUserID to DELETED
	// in a single conditional write. It reports whether a row changed.
	MarkStoryDeleted(ctx context.Context, ownerUserID, storyID string) (bool, error)

	// LinkStoryArticle records the pair once. It reports whether a new link
	// was created; an existing link is not an error.
	LinkStoryArticle(ctx context.Context, storyID, articleID string, linkedAt time.Time) (bool, error)

	// ListStoryArticles returns the articles linked to a story, most recently linked first.
	ListStoryArticles(ctx context.Context, storyID string) ([]Article, error)
}

// Store is the durable state behind the engine.
type Store interface {
	ArticleStore
	StoryStore
	Ping(ctx context.Context) error
}

// Fetcher returns a bounded page of candidate articles for a keyword.
type Fetcher interface {
	Fetch(ctx context.Context, keyword string) ([]RawArticle, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, keyword string) ([]RawArticle, error)

func (f FetcherFunc) Fetch(ctx context.Context, keyword string) ([]RawArticle, error) {
	return f(ctx, keyword)
}
