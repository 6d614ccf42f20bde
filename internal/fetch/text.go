package fetch

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// truncationMarker matches the "[+1234 chars]" suffix NewsAPI appends to
// clipped content.
var truncationMarker = regexp.MustCompile(`\s*\[\+\d+ chars\]\s*$`)

// plainText strips markup from an HTML fragment and collapses whitespace.
// Script and style bodies are dropped.
func plainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapseSpace(fragment)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li":
				b.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanContent normalizes provider content for storage.
func cleanContent(s string) string {
	return truncationMarker.ReplaceAllString(plainText(s), "")
}
