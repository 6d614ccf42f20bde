// Package rss renders tracked stories as RSS 2.0 feeds.
package rss

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"storywatch/internal/story"
)

// RSS is the root element of an RSS feed.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	AtomNS  string   `xml:"xmlns:atom,attr,omitempty"`
	Channel Channel  `xml:"channel"`
}

// Channel represents the channel element in an RSS feed.
type Channel struct {
	XMLName       xml.Name  `xml:"channel"`
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language,omitempty"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"` // RFC1123Z
	SelfLink      *AtomLink `xml:"atom:link,omitempty"`
	Items         []Item    `xml:"item"`
}

// AtomLink is the atom:link rel="self" element feed validators expect.
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// Item represents an item element in an RSS feed.
type Item struct {
	XMLName     xml.Name   `xml:"item"`
	Title       string     `xml:"title"`
	Link        string     `xml:"link"`
	Description string     `xml:"description,omitempty"`
	Source      string     `xml:"source,omitempty"`
	PubDate     string     `xml:"pubDate,omitempty"` // RFC1123Z
	GUID        GUID       `xml:"guid"`
	Enclosure   *Enclosure `xml:"enclosure,omitempty"`
}

// GUID identifies an item; article URLs are permalinks.
type GUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

// Enclosure attaches the article image.
type Enclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int    `xml:"length,attr"`
}

var policy = bluemonday.UGCPolicy()

// StoryFeed builds the feed for a story. baseURL is the public API root used
// for channel and self links.
func StoryFeed(details *story.StoryDetails, baseURL string, now time.Time) RSS {
	base := strings.TrimRight(baseURL, "/")
	storyURL := fmt.Sprintf("%s/api/story_tracking/%s", base, details.ID)

	feed := RSS{
		Version: "2.0",
		AtomNS:  "http://www.w3.org/2005/Atom",
		Channel: Channel{
			Title:         fmt.Sprintf("Story: %s", details.Keyword),
			Link:          storyURL,
			Description:   fmt.Sprintf("Articles tracked for %q", details.Keyword),
			Language:      "en-us",
			LastBuildDate: now.UTC().Format(time.RFC1123Z),
			SelfLink: &AtomLink{
				Href: storyURL + "/rss",
				Rel:  "self",
				Type: "application/rss+xml",
			},
		},
	}

	for _, a := range details.Articles {
		item := Item{
			Title:       a.Title,
			Link:        a.URL,
			Description: policy.Sanitize(firstNonEmpty(a.Summary, a.Content, a.Title)),
			Source:      a.SourceName,
			GUID:        GUID{Value: a.URL, IsPermaLink: true},
		}
		if item.Title == "" {
			item.Title = a.URL
		}
		if !a.PublishedAt.IsZero() {
			item.PubDate = a.PublishedAt.UTC().Format(time.RFC1123Z)
		}
		if a.ImageURL != "" {
			item.Enclosure = &Enclosure{URL: a.ImageURL, Type: imageType(a.ImageURL)}
		}
		feed.Channel.Items = append(feed.Channel.Items, item)
	}
	return feed
}

// Marshal encodes the feed with the XML declaration.
func Marshal(feed RSS) ([]byte, error) {
	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling rss: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func imageType(url string) string {
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
