package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	securitynet "storywatch/internal/security/netutil"
	"storywatch/internal/story"
)

// RSSClient runs keyword searches against an RSS search endpoint such as
// Google News (https://news.google.com/rss/search?q=...).
type RSSClient struct {
	endpoint *url.URL
	pageSize int
	client   *http.Client
	limiter  *rate.Limiter
	parser   *gofeed.Parser
	logger   zerolog.Logger
}

func NewRSSClient(endpoint string, pageSize int, client *http.Client, limiter *rate.Limiter, logger zerolog.Logger) (*RSSClient, error) {
	u, err := securitynet.ValidateEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if client == nil {
		client = newHTTPClient(0)
	}
	if limiter == nil {
		limiter = newLimiter(0)
	}
	return &RSSClient{
		endpoint: u,
		pageSize: pageSize,
		client:   client,
		limiter:  limiter,
		parser:   gofeed.NewParser(),
		logger:   logger.With().Str("provider", ProviderRSS).Logger(),
	}, nil
}

// Fetch returns the first page of search results for keyword.
func (c *RSSClient) Fetch(ctx context.Context, keyword string) ([]story.RawArticle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	u := *c.endpoint
	q := u.Query()
	q.Set("q", keyword)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, "")
	}

	parsedFeed, err := c.parser.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: error parsing feed: %v", ErrBadResponse, err)
	}
	if parsedFeed == nil {
		return nil, fmt.Errorf("%w: empty document", ErrBadResponse)
	}

	articles := make([]story.RawArticle, 0, min(len(parsedFeed.Items), c.pageSize))
	for _, item := range parsedFeed.Items {
		if len(articles) == c.pageSize {
			break
		}
		articles = append(articles, itemToRaw(parsedFeed, item))
	}

	c.logger.Debug().
		Str("keyword", keyword).
		Int("items", len(parsedFeed.Items)).
		Int("returned", len(articles)).
		Msg("Fetched articles")
	return articles, nil
}

// itemToRaw trims surrounding whitespace from the link and applies no other
// URL normalization.
func itemToRaw(feed *gofeed.Feed, item *gofeed.Item) story.RawArticle {
	raw := story.RawArticle{
		Title:   strings.TrimSpace(item.Title),
		URL:     strings.TrimSpace(item.Link),
		Summary: plainText(item.Description),
		Content: plainText(item.Content),
	}
	if item.PublishedParsed != nil {
		raw.PublishedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		raw.PublishedAt = item.UpdatedParsed.UTC()
	}

	raw.SourceName = descriptionSource(item.Description)
	if raw.SourceName == "" && item.Author != nil {
		raw.SourceName = strings.TrimSpace(item.Author.Name)
	}
	if raw.SourceName == "" {
		raw.SourceName = strings.TrimSpace(feed.Title)
	}

	if item.Image != nil {
		raw.ImageURL = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") {
				raw.ImageURL = enc.URL
				break
			}
		}
	}
	return raw
}

// descriptionSource extracts the publisher from aggregator descriptions,
// which end in <font>Publisher</font>.
func descriptionSource(description string) string {
	if !strings.Contains(description, "<font") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("font").Last().Text())
}
