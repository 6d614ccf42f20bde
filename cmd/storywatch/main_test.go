package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storywatch/internal/story"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "storywatch version dev") {
		t.Errorf("output = %q", out)
	}
}

func TestMigrateCreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "storywatch.db")

	out, err := execute(t, "migrate", "--db", dbPath)
	if err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !strings.Contains(out, "Schema is up to date (sqlite)") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestRefreshEmptyStore(t *testing.T) {
	t.Setenv("STORYWATCH_DB_PATH", filepath.Join(t.TempDir(), "refresh.db"))
	// Never contacted: there are no stories to refresh.
	t.Setenv("STORYWATCH_FETCH_RSS_BASE_URL", "http://127.0.0.1:1/rss")

	out, err := execute(t, "refresh", "--provider", "rss")
	if err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if !strings.HasPrefix(out, "Refreshed 0 stories") {
		t.Errorf("output = %q", out)
	}
}

func TestRefreshRequiresAPIKeyForNewsAPI(t *testing.T) {
	t.Setenv("STORYWATCH_DB_PATH", filepath.Join(t.TempDir(), "refresh.db"))
	t.Setenv("NEWS_API_KEY", "")
	t.Setenv("STORYWATCH_FETCH_NEWSAPI_KEY", "")

	_, err := execute(t, "refresh")
	if err == nil || !strings.Contains(err.Error(), "news provider") {
		t.Errorf("error = %v, want provider configuration error", err)
	}
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := execute(t, "migrate", "--db-driver", "oracle")
	if err == nil || !strings.Contains(err.Error(), "db.driver") {
		t.Errorf("error = %v", err)
	}
}

func TestPrintReport(t *testing.T) {
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	report := &story.RefreshReport{
		StartedAt:      start,
		FinishedAt:     start.Add(1500 * time.Millisecond),
		StoriesVisited: 2,
		ArticlesSeen:   20,
		NewArticles:    5,
		NewLinks:       3,
		Aborted:        true,
		Stories: []story.StoryResult{
			{StoryID: "s-1", Keyword: "ev", NewLinks: 3},
			{StoryID: "s-2", Keyword: "mars", Err: story.ErrUpstreamUnavailable},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()
	for _, want := range []string{
		"Refreshed 2 stories in 1.5s: 20 articles seen, 5 new articles, 3 new links",
		"Cycle interrupted",
		`failed s-2 ("mars")`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "s-1") {
		t.Errorf("successful story listed as failure:\n%s", out)
	}
}
