package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config tunes the refresh cycle.
type Config struct {
	// Concurrency bounds how many stories refresh at once. Values below 1
	// mean one story at a time.
	Concurrency int

	// FetchTimeout bounds each provider call. Zero disables the bound.
	FetchTimeout time.Duration
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMatcher replaces the default KeywordMatcher.
func WithMatcher(m Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns the tracked story lifecycle and runs the
// fetch → dedup → match → link cycle.
type Engine struct {
	store   Store
	fetcher Fetcher
	dedup   *Deduplicator
	matcher Matcher
	logger  zerolog.Logger
	cfg     Config
	now     func() time.Time
}

func NewEngine(store Store, fetcher Fetcher, logger zerolog.Logger, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		fetcher: fetcher,
		dedup:   NewDeduplicator(store),
		matcher: KeywordMatcher{},
		logger:  logger.With().Str("component", "story_engine").Logger(),
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateTrackedStory starts tracking keyword for userID. The candidate page is
// fetched before anything is persisted, so a provider failure leaves no story
// behind. When sourceArticleID is set, that article is linked as the seed
// without a relatedness check.
func (e *Engine) CreateTrackedStory(ctx context.Context, userID, keyword, sourceArticleID string) (*TrackedStory, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: keyword is required", ErrInvalidInput)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	if sourceArticleID != "" {
		if _, err := e.store.GetArticle(ctx, sourceArticleID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: source article %s does not exist", ErrInvalidInput, sourceArticleID)
			}
			return nil, storeError("loading source article", err)
		}
	}

	candidates, err := e.fetch(ctx, keyword)
	if err != nil {
		return nil, err
	}

	st := &TrackedStory{
		ID:              uuid.NewString(),
		OwnerUserID:     userID,
		Keyword:         keyword,
		SourceArticleID: sourceArticleID,
		Status:          StatusActive,
		CreatedAt:       e.now().UTC(),
	}
	if err := e.store.CreateStory(ctx, st); err != nil {
		return nil, storeError("creating story", err)
	}

	if sourceArticleID != "" {
		if _, err := e.store.LinkStoryArticle(ctx, st.ID, sourceArticleID, e.now().UTC()); err != nil {
			return nil, e.abandonStory(ctx, st, storeError("linking seed article", err))
		}
	}

	res := e.process(ctx, *st, candidates)
	if res.Err != nil {
		return nil, e.abandonStory(ctx, st, res.Err)
	}

	e.logger.Info().
		Str("story_id", st.ID).
		Str("keyword", st.Keyword).
		Int("articles_seen", res.ArticlesSeen).
		Int("new_links", res.NewLinks).
		Msg("Tracked story created")
	return st, nil
}

// abandonStory soft-deletes a partially created story and returns cause.
func (e *Engine) abandonStory(ctx context.Context, st *TrackedStory, cause error) error {
	deleted, err := e.store.MarkStoryDeleted(context.WithoutCancel(ctx), st.OwnerUserID, st.ID)
	if err != nil || !deleted {
		e.logger.Error().
			Err(err).
			AnErr("cause", cause).
			Str("story_id", st.ID).
			Msg("Could not roll back partially created story")
		return cause
	}
	e.logger.Warn().Err(cause).Str("story_id", st.ID).Msg("Story creation failed, story rolled back")
	return cause
}

// GetStoryDetails returns an active story and its linked articles. Deleted
// stories are reported as ErrNotFound.
func (e *Engine) GetStoryDetails(ctx context.Context, storyID string) (*StoryDetails, error) {
	st, err := e.activeStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	articles, err := e.store.ListStoryArticles(ctx, st.ID)
	if err != nil {
		return nil, storeError("listing story articles", err)
	}
	if articles == nil {
		articles = []Article{}
	}
	return &StoryDetails{TrackedStory: *st, Articles: articles}, nil
}

// ListTrackedStories returns the active stories owned by userID, newest first.
func (e *Engine) ListTrackedStories(ctx context.Context, userID string) ([]TrackedStory, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	stories, err := e.store.ListStoriesByOwner(ctx, userID)
	if err != nil {
		return nil, storeError("listing stories", err)
	}
	if stories == nil {
		stories = []TrackedStory{}
	}
	return stories, nil
}

// DeleteTrackedStory soft-deletes a story owned by userID. Missing, already
// deleted and foreign stories all yield false without an error so callers
// cannot probe for other users' stories.
func (e *Engine) DeleteTrackedStory(ctx context.Context, userID, storyID string) (bool, error) {
	if userID == "" || storyID == "" {
		return false, nil
	}
	deleted, err := e.store.MarkStoryDeleted(ctx, userID, storyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, storeError("deleting story", err)
	}
	if deleted {
		e.logger.Info().Str("story_id", storyID).Msg("Tracked story deleted")
	}
	return deleted, nil
}

// FetchLatest fetches a page of articles for keyword and stores them without
// linking them to any story.
func (e *Engine) FetchLatest(ctx context.Context, keyword string) ([]Article, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: keyword is required", ErrInvalidInput)
	}
	candidates, err := e.fetch(ctx, keyword)
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(candidates))
	for _, raw := range candidates {
		article, _, err := e.dedup.Upsert(ctx, raw)
		if err != nil {
			if errors.Is(err, ErrInvalidArticle) {
				e.logger.Warn().Str("keyword", keyword).Str("title", raw.Title).Msg("Skipping candidate without URL")
				continue
			}
			return nil, err
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// RefreshAllTrackedStories visits every active story once. Failures are
// recorded per story in the report; the returned error is reserved for not
// being able to list the stories at all. Cancelling ctx stops new stories
// from starting, while stories already underway finish their pass.
func (e *Engine) RefreshAllTrackedStories(ctx context.Context) (*RefreshReport, error) {
	report := &RefreshReport{StartedAt: e.now().UTC()}

	stories, err := e.store.ListActiveStories(ctx)
	if err != nil {
		return nil, storeError("listing active stories", err)
	}
	e.logger.Info().Int("stories", len(stories)).Msg("Starting refresh cycle")

	limit := e.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	// Work inside a story is never cut short by the cycle's cancellation.
	work := context.WithoutCancel(ctx)
	results := make([]StoryResult, len(stories))
	visited := make([]bool, len(stories))

	for i, st := range stories {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = e.refreshStory(work, st)
			visited[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for i := range stories {
		if !visited[i] {
			report.Aborted = true
			continue
		}
		res := results[i]
		if res.Err != nil {
			e.logger.Error().Err(res.Err).Str("story_id", res.StoryID).Str("keyword", res.Keyword).Msg("Story refresh failed")
		}
		report.add(res)
	}
	report.FinishedAt = e.now().UTC()

	e.logger.Info().
		Int("visited", report.StoriesVisited).
		Int("articles_seen", report.ArticlesSeen).
		Int("new_articles", report.NewArticles).
		Int("new_links", report.NewLinks).
		Int("failures", len(report.Failures())).
		Bool("aborted", report.Aborted).
		Msg("Refresh cycle completed")
	return report, nil
}

func (e *Engine) refreshStory(ctx context.Context, st TrackedStory) StoryResult {
	res := StoryResult{StoryID: st.ID, Keyword: st.Keyword}

	if normalizeKeyword(st.Keyword) == "" {
		e.logger.Warn().Str("story_id", st.ID).Msg("Story has an empty keyword, skipping")
		res.Skipped = true
		return res
	}

	// The story may have been deleted after the cycle listed it.
	current, err := e.store.GetStory(ctx, st.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		res.Err = storeError("reloading story", err)
		return res
	}
	if err != nil || !current.Active() {
		res.Skipped = true
		return res
	}

	candidates, err := e.fetch(ctx, st.Keyword)
	if err != nil {
		res.Err = err
		return res
	}
	return e.process(ctx, st, candidates)
}

// process runs dedup, match and link over candidates for one story.
func (e *Engine) process(ctx context.Context, st TrackedStory, candidates []RawArticle) StoryResult {
	res := StoryResult{StoryID: st.ID, Keyword: st.Keyword}

	for _, raw := range candidates {
		article, created, err := e.dedup.Upsert(ctx, raw)
		if err != nil {
			if errors.Is(err, ErrInvalidArticle) {
				e.logger.Warn().Str("story_id", st.ID).Str("title", raw.Title).Msg("Skipping candidate without URL")
				continue
			}
			res.Err = err
			return res
		}
		res.ArticlesSeen++
		if created {
			res.NewArticles++
		}

		if !e.matcher.IsRelated(st, article) {
			e.logger.Debug().Str("story_id", st.ID).Str("url", article.URL).Msg("Candidate not related")
			continue
		}

		linked, err := e.store.LinkStoryArticle(ctx, st.ID, article.ID, e.now().UTC())
		if err != nil {
			res.Err = storeError("linking article", err)
			return res
		}
		if linked {
			res.NewLinks++
		}
	}
	return res
}

func (e *Engine) fetch(ctx context.Context, keyword string) ([]RawArticle, error) {
	if e.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()
	}
	candidates, err := e.fetcher.Fetch(ctx, keyword)
	if err != nil {
		return nil, upstreamError(keyword, err)
	}
	return candidates, nil
}

func (e *Engine) activeStory(ctx context.Context, storyID string) (*TrackedStory, error) {
	if storyID == "" {
		return nil, ErrNotFound
	}
	st, err := e.store.GetStory(ctx, storyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeError("loading story", err)
	}
	if !st.Active() {
		return nil, ErrNotFound
	}
	return st, nil
}

// Ping reports whether the backing store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return storeError("pinging store", e.store.Ping(ctx))
}
