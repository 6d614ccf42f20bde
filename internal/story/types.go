// internal/story/types.go
package story

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a tracked story.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusDeleted Status = "DELETED"
)

// Article is a canonical, deduplicated news article. Rows are shared between
// stories and never rewritten once stored.
type Article struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Content     string    `json:"content,omitempty"`
	SourceName  string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	ImageURL    string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MarshalJSON leaves out publishedAt when the provider gave no date.
func (a Article) MarshalJSON() ([]byte, error) {
	type plain Article
	out := struct {
		plain
		PublishedAt *time.Time `json:"publishedAt,omitempty"`
	}{plain: plain(a)}
	if !a.PublishedAt.IsZero() {
		out.PublishedAt = &a.PublishedAt
	}
	return json.Marshal(out)
}

// RawArticle is a candidate article as returned by a Fetcher.
type RawArticle struct {
	Title       string
	URL         string
	SourceName  string
	PublishedAt time.Time
	Content     string
	Summary     string
	ImageURL    string
}

// TrackedStory is a user's standing monitor over a keyword.
type TrackedStory struct {
	ID              string    `json:"id"`
	OwnerUserID     string    `json:"userId"`
	Keyword         string    `json:"keyword"`
	SourceArticleID string    `json:"sourceArticleId,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Active reports whether the story still takes part in refreshes and listings.
func (s TrackedStory) Active() bool {
	return s.Status == StatusActive
}

// StoryDetails is a story together with its linked articles.
type StoryDetails struct {
	TrackedStory
	Articles []Article `json:"articles"`
}

// StoryResult summarizes the refresh of a single story.
type StoryResult struct {
	StoryID      string
	Keyword      string
	ArticlesSeen int
	NewArticles  int
	NewLinks     int
	Skipped      bool
	Err          error
}

// RefreshReport is the outcome of one refresh cycle over all active stories.
type RefreshReport struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	StoriesVisited int
	ArticlesSeen   int
	NewArticles    int
	NewLinks       int
	Aborted        bool
	Stories        []StoryResult
}

// Failures returns the results of stories whose refresh failed.
func (r *RefreshReport) Failures() []StoryResult {
	var failed []StoryResult
	for _, res := range r.Stories {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

func (r *RefreshReport) add(res StoryResult) {
	r.StoriesVisited++
	r.ArticlesSeen += res.ArticlesSeen
	r.NewArticles += res.NewArticles
	r.NewLinks += res.NewLinks
	r.Stories = append(r.Stories, res)
}
