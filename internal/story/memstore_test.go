package story

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store with the same uniqueness rules as the SQL stores.
type memStore struct {
	mu       sync.Mutex
	seq      int
	articles map[string]Article
	byURL    map[string]string
	stories  map[string]TrackedStory
	links    map[[2]string]time.Time

	// failWith, when set, is returned by every call.
	failWith       error
	// failListActive, when set, is returned by ListActiveStories only.
	failListActive error
}

func newMemStore() *memStore {
	return &memStore{
		articles: make(map[string]Article),
		byURL:    make(map[string]string),
		stories:  make(map[string]TrackedStory),
		links:    make(map[[2]string]time.Time),
	}
}

func (m *memStore) FindArticleByURL(ctx context.Context, url string) (*Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	id, ok := m.byURL[url]
	if !ok {
		return nil, ErrNotFound
	}
	a := m.articles[id]
	return &a, nil
}

func (m *memStore) GetArticle(ctx context.Context, id string) (*Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *memStore) InsertArticle(ctx context.Context, raw RawArticle) (*Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if _, ok := m.byURL[raw.URL]; ok {
		return nil, ErrStoreConflict
	}
	m.seq++
	a := Article{
		ID:          fmt.Sprintf("article-%d", m.seq),
		URL:         raw.URL,
		Title:       raw.Title,
		Summary:     raw.Summary,
		Content:     raw.Content,
		SourceName:  raw.SourceName,
		PublishedAt: raw.PublishedAt,
		ImageURL:    raw.ImageURL,
		CreatedAt:   time.Now().UTC(),
	}
	m.articles[a.ID] = a
	m.byURL[a.URL] = a.ID
	return &a, nil
}

func (m *memStore) CreateStory(ctx context.Context, s *TrackedStory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.stories[s.ID]; ok {
		return ErrStoreConflict
	}
	m.stories[s.ID] = *s
	return nil
}

func (m *memStore) GetStory(ctx context.Context, id string) (*TrackedStory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.stories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memStore) ListStoriesByOwner(ctx context.Context, ownerUserID string) ([]TrackedStory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []TrackedStory
	for _, s := range m.stories {
		if s.OwnerUserID == ownerUserID && s.Active() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) ListActiveStories(ctx context.Context) ([]TrackedStory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.failListActive != nil {
		return nil, m.failListActive
	}
	var out []TrackedStory
	for _, s := range m.stories {
		if s.Active() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) MarkStoryDeleted(ctx context.Context, ownerUserID, storyID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	s, ok := m.stories[storyID]
	if !ok || s.OwnerUserID != ownerUserID || !s.Active() {
		return false, nil
	}
	s.Status = StatusDeleted
	m.stories[storyID] = s
	return true, nil
}

func (m *memStore) LinkStoryArticle(ctx context.Context, storyID, articleID string, linkedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	key := [2]string{storyID, articleID}
	if _, ok := m.links[key]; ok {
		return false, nil
	}
	m.links[key] = linkedAt
	return true, nil
}

func (m *memStore) ListStoryArticles(ctx context.Context, storyID string) ([]Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	type linked struct {
		article Article
		at      time.Time
	}
	var rows []linked
	for key, at := range m.links {
		if key[0] == storyID {
			rows = append(rows, linked{article: m.articles[key[1]], at: at})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].at.After(rows[j].at) })
	out := make([]Article, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.article)
	}
	return out, nil
}

func (m *memStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failWith
}

func (m *memStore) linkCount(storyID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.links {
		if key[0] == storyID {
			n++
		}
	}
	return n
}

func (m *memStore) articleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.articles)
}

// stubFetcher serves canned pages per keyword.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string][]RawArticle
	errs  map[string]error
	calls map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages: make(map[string][]RawArticle),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, keyword string) ([]RawArticle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[keyword]++
	if err := f.errs[keyword]; err != nil {
		return nil, err
	}
	return f.pages[keyword], nil
}

func (f *stubFetcher) set(keyword string, page ...RawArticle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[keyword] = page
}

func (f *stubFetcher) fail(keyword string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[keyword] = err
}

func (f *stubFetcher) callCount(keyword string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[keyword]
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}
