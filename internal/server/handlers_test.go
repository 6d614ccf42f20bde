package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"storywatch/internal/auth"
	"storywatch/internal/database"
	"storywatch/internal/story"
)

const testSecret = "server-test-secret"

type apiResponse struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type testServer struct {
	server  *Server
	handler http.Handler
	db      *database.DB
	// results keyed by keyword; keywords missing from the map fail upstream.
	results map[string][]story.RawArticle
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "server.db"), database.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ts := &testServer{db: db, results: map[string][]story.RawArticle{}}
	fetcher := story.FetcherFunc(func(ctx context.Context, keyword string) ([]story.RawArticle, error) {
		res, ok := ts.results[keyword]
		if !ok {
			return nil, errors.New("provider down")
		}
		return res, nil
	})

	engine := story.NewEngine(db, fetcher, zerolog.Nop(), story.Config{Concurrency: 1, FetchTimeout: 5 * time.Second})
	srv, err := NewServer(engine, auth.NewVerifier(testSecret, "", ""), zerolog.Nop(), Config{
		BaseURL:       "https://storywatch.example/",
		AllowedOrigin: "*",
	})
	if err != nil {
		t.Fatalf("Failed to initialize server: %v", err)
	}
	srv.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	ts.server = srv
	ts.handler = srv.Routes()
	return ts
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("encoding body: %v", err)
			}
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func evArticles() []story.RawArticle {
	return []story.RawArticle{
		{URL: "https://example.com/ev-1", Title: "Electric vehicles outsell diesel", SourceName: "Wire", PublishedAt: time.Date(2026, 9, 30, 8, 0, 0, 0, time.UTC)},
		{URL: "https://example.com/ev-2", Title: "Battery prices fall", Summary: "Cheaper cells for electric vehicles"},
		{URL: "https://example.com/solar", Title: "Solar farm opens"},
	}
}

func (ts *testServer) createStory(t *testing.T, userID, keyword string) story.StoryDetails {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/story_tracking", userID, createStoryRequest{Keyword: keyword})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var details story.StoryDetails
	if err := json.Unmarshal(decode(t, rec).Data, &details); err != nil {
		t.Fatalf("decoding story: %v", err)
	}
	return details
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode(t, rec); resp.Status != "success" {
		t.Errorf("status field = %q", resp.Status)
	}
}

func TestCreateStory(t *testing.T) {
	ts := newTestServer(t)
	ts.results["electric vehicles"] = evArticles()

	details := ts.createStory(t, "alice", "  electric vehicles ")
	if details.Keyword != "electric vehicles" || details.OwnerUserID != "alice" {
		t.Errorf("story = %+v", details.TrackedStory)
	}
	if details.Status != story.StatusActive {
		t.Errorf("Status = %q", details.Status)
	}
	if len(details.Articles) != 2 {
		t.Fatalf("got %d linked articles, want 2", len(details.Articles))
	}
	for _, a := range details.Articles {
		if a.URL == "https://example.com/solar" {
			t.Error("unrelated article was linked")
		}
	}
}

func TestCreateStoryWithSeed(t *testing.T) {
	ts := newTestServer(t)
	ts.results["mars"] = evArticles()
	ts.results["seed lookup"] = []story.RawArticle{{URL: "https://example.com/seed", Title: "Unrelated seed"}}

	rec := ts.do(t, http.MethodGet, "/api/news/fetch?keyword=seed+lookup", "", nil)
	var ids []string
	if err := json.Unmarshal(decode(t, rec).Data, &ids); err != nil || len(ids) != 1 {
		t.Fatalf("ids = %v, err = %v", ids, err)
	}

	rec = ts.do(t, http.MethodPost, "/api/story_tracking", "alice", createStoryRequest{Keyword: "mars", SourceArticleID: ids[0]})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var details story.StoryDetails
	if err := json.Unmarshal(decode(t, rec).Data, &details); err != nil {
		t.Fatal(err)
	}
	if details.SourceArticleID != ids[0] || len(details.Articles) != 1 || details.Articles[0].ID != ids[0] {
		t.Errorf("details = %+v", details)
	}
}

func TestCreateStoryErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.results["ev"] = nil

	tests := []struct {
		name   string
		user   string
		body   any
		status int
	}{
		{"no token", "", createStoryRequest{Keyword: "ev"}, http.StatusUnauthorized},
		{"missing keyword", "alice", createStoryRequest{Keyword: "   "}, http.StatusBadRequest},
		{"malformed body", "alice", "{not json", http.StatusBadRequest},
		{"empty body", "alice", "", http.StatusBadRequest},
		{"unknown seed", "alice", createStoryRequest{Keyword: "ev", SourceArticleID: "missing"}, http.StatusBadRequest},
		{"provider failure", "alice", createStoryRequest{Keyword: "offline"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/story_tracking", tt.user, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if resp := decode(t, rec); resp.Status != "error" || resp.Message == "" {
				t.Errorf("response = %+v", resp)
			}
		})
	}

	stories, err := ts.db.ListStoriesByOwner(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(stories) != 0 {
		t.Errorf("failed requests persisted %d stories", len(stories))
	}
}

func TestAuthRejections(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name   string
		header string
	}{
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.token"},
		{"empty bearer", "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/story_tracking/user", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestUserStories(t *testing.T) {
	ts := newTestServer(t)
	ts.results["ev"] = nil
	ts.results["mars"] = nil

	first := ts.createStory(t, "alice", "ev")
	second := ts.createStory(t, "alice", "mars")
	ts.createStory(t, "bob", "ev")

	rec := ts.do(t, http.MethodGet, "/api/story_tracking/user", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stories []story.TrackedStory
	if err := json.Unmarshal(decode(t, rec).Data, &stories); err != nil {
		t.Fatal(err)
	}
	if len(stories) != 2 {
		t.Fatalf("got %d stories, want 2", len(stories))
	}
	got := map[string]bool{stories[0].ID: true, stories[1].ID: true}
	if !got[first.ID] || !got[second.ID] {
		t.Errorf("stories = %+v", stories)
	}

	rec = ts.do(t, http.MethodGet, "/api/story_tracking/user", "carol", nil)
	if body := strings.TrimSpace(rec.Body.String()); body != `{"status":"success","data":[]}` {
		t.Errorf("empty listing body = %s", body)
	}
}

func TestStoryDetailsAndDelete(t *testing.T) {
	ts := newTestServer(t)
	ts.results["electric vehicles"] = evArticles()
	created := ts.createStory(t, "alice", "electric vehicles")
	path := "/api/story_tracking/" + created.ID

	if rec := ts.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous details status = %d, want 401", rec.Code)
	}
	rec := ts.do(t, http.MethodGet, path, "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("details status = %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodDelete, path, "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous delete status = %d, want 401", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, path, "bob", nil); rec.Code != http.StatusNotFound {
		t.Errorf("foreign delete status = %d, want 404", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, path, "alice", nil); rec.Code != http.StatusOK {
		t.Errorf("story gone after foreign delete: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodDelete, path, "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete status = %d", rec.Code)
	}
	if resp := decode(t, rec); resp.Message != "tracked story deleted" {
		t.Errorf("message = %q", resp.Message)
	}
	if rec := ts.do(t, http.MethodGet, path, "alice", nil); rec.Code != http.StatusNotFound {
		t.Errorf("details after delete status = %d, want 404", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, path, "alice", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestStoryDetailsUnknown(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/story_tracking/does-not-exist", "alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode(t, rec); resp.Message != "tracked story not found" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestNewsFetch(t *testing.T) {
	ts := newTestServer(t)
	ts.results["electric vehicles"] = evArticles()

	rec := ts.do(t, http.MethodGet, "/api/news/fetch?keyword=electric+vehicles", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var first []string
	if err := json.Unmarshal(decode(t, rec).Data, &first); err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 {
		t.Fatalf("got %d ids, want 3", len(first))
	}

	rec = ts.do(t, http.MethodGet, "/api/news/fetch?keyword=electric+vehicles", "", nil)
	var second []string
	if err := json.Unmarshal(decode(t, rec).Data, &second); err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("id %d changed on refetch: %s != %s", i, first[i], second[i])
		}
	}

	if rec := ts.do(t, http.MethodGet, "/api/news/fetch", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing keyword status = %d, want 400", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/news/fetch?keyword=offline", "", nil); rec.Code != http.StatusBadGateway {
		t.Errorf("provider failure status = %d, want 502", rec.Code)
	}
}

func TestLatestArticles(t *testing.T) {
	ts := newTestServer(t)
	ts.results["electric vehicles"] = evArticles()

	rec := ts.do(t, http.MethodGet, "/api/story_tracking?keyword=electric+vehicles", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var views []articleView
	if err := json.Unmarshal(decode(t, rec).Data, &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 3 || views[0].Source != "Wire" || views[0].ID == "" {
		t.Fatalf("views = %+v", views)
	}
	if views[0].PublishedAt == nil || !views[0].PublishedAt.Equal(time.Date(2026, 9, 30, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("dated article publishedAt = %v", views[0].PublishedAt)
	}
	if strings.Count(rec.Body.String(), `"publishedAt"`) != 1 {
		t.Errorf("undated articles should omit publishedAt: %s", rec.Body.String())
	}

	if rec := ts.do(t, http.MethodGet, "/api/story_tracking", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing keyword status = %d, want 400", rec.Code)
	}
}

func TestStoryRSS(t *testing.T) {
	ts := newTestServer(t)
	ts.results["electric vehicles"] = evArticles()
	created := ts.createStory(t, "alice", "electric vehicles")

	rec := ts.do(t, http.MethodGet, "/api/story_tracking/"+created.ID+"/rss", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	var feed struct {
		Channel struct {
			AtomLink struct {
				Href string `xml:"href,attr"`
			} `xml:"http://www.w3.org/2005/Atom link"`
			Links []string `xml:"link"`
			Items []struct {
				Link string `xml:"link"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal(rec.Body.Bytes(), &feed); err != nil {
		t.Fatalf("invalid feed: %v", err)
	}
	storyURL := "https://storywatch.example/api/story_tracking/" + created.ID
	if len(feed.Channel.Links) == 0 || feed.Channel.Links[0] != storyURL {
		t.Errorf("channel links = %q, want first %q", feed.Channel.Links, storyURL)
	}
	if feed.Channel.AtomLink.Href != storyURL+"/rss" {
		t.Errorf("atom:link href = %q, want %q", feed.Channel.AtomLink.Href, storyURL+"/rss")
	}
	if strings.Contains(rec.Body.String(), "alice") {
		t.Error("public feed exposes the story owner")
	}
	if len(feed.Channel.Items) != 2 {
		t.Errorf("got %d items, want 2", len(feed.Channel.Items))
	}

	if rec := ts.do(t, http.MethodGet, "/api/story_tracking/missing/rss", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing story status = %d, want 404", rec.Code)
	}
}

func TestGzipResponses(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading gzip body: %v", err)
	}
	if !strings.Contains(string(body), `"status":"success"`) {
		t.Errorf("body = %s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodOptions, "/api/story_tracking", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing allow-origin header")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Errorf("Authorization not allowed: %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if resp := decode(t, rec); resp.Status != "error" {
		t.Errorf("status field = %q", resp.Status)
	}
}
