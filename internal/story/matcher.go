package story

import (
	"strings"
)

// Matcher decides whether an article belongs to a tracked story.
type Matcher interface {
	IsRelated(s TrackedStory, a Article) bool
}

// KeywordMatcher links an article when the story keyword occurs, ignoring
// case, in the article's title, summary or content. Articles reaching it were
// fetched with the same keyword, so its job is to reject the provider's
// near misses rather than to discover anything.
type KeywordMatcher struct{}

func (KeywordMatcher) IsRelated(s TrackedStory, a Article) bool {
	keyword := normalizeKeyword(s.Keyword)
	if keyword == "" {
		return false
	}
	for _, field := range []string{a.Title, a.Summary, a.Content} {
		if field != "" && strings.Contains(strings.ToLower(field), keyword) {
			return true
		}
	}
	return false
}

func normalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}
