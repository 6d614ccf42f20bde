package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	securitynet "storywatch/internal/security/netutil"
	"storywatch/internal/story"
)

// removedTitle marks entries NewsAPI keeps as placeholders for withdrawn
// articles.
const removedTitle = "[Removed]"

// NewsAPIClient queries the NewsAPI "everything" endpoint.
type NewsAPIClient struct {
	endpoint *url.URL
	apiKey   string
	pageSize int
	client   *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

func NewNewsAPIClient(endpoint, apiKey string, pageSize int, client *http.Client, limiter *rate.Limiter, logger zerolog.Logger) (*NewsAPIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
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
	return &NewsAPIClient{
		endpoint: u,
		apiKey:   apiKey,
		pageSize: pageSize,
		client:   client,
		limiter:  limiter,
		logger:   logger.With().Str("provider", ProviderNewsAPI).Logger(),
	}, nil
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source      sourceName `json:"source"`
	Author      string     `json:"author"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	URLToImage  string     `json:"urlToImage"`
	PublishedAt string     `json:"publishedAt"`
	Content     string     `json:"content"`
}

// sourceName accepts either {"id":..,"name":..} or a bare string.
type sourceName string

func (s *sourceName) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*s = sourceName(name)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = sourceName(obj.Name)
	return nil
}

// Fetch returns one page of the most relevant articles for keyword.
func (c *NewsAPIClient) Fetch(ctx context.Context, keyword string) ([]story.RawArticle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	u := *c.endpoint
	q := u.Query()
	q.Set("q", keyword)
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrProviderUnavailable, err)
	}

	var payload newsAPIResponse
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, payload.Message)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, decodeErr)
	}
	if payload.Status != "ok" {
		if payload.Code == "rateLimited" {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, payload.Message)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrProviderUnavailable, payload.Code, payload.Message)
	}

	articles := make([]story.RawArticle, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		if a.Title == removedTitle {
			continue
		}
		articles = append(articles, a.toRaw())
	}
	if len(articles) > c.pageSize {
		articles = articles[:c.pageSize]
	}

	c.logger.Debug().
		Str("keyword", keyword).
		Int("total_results", payload.TotalResults).
		Int("returned", len(articles)).
		Msg("Fetched articles")
	return articles, nil
}

// toRaw trims surrounding whitespace from the URL. That is the only
// normalization the dedup key gets; query and fragment stay as sent.
func (a newsAPIArticle) toRaw() story.RawArticle {
	raw := story.RawArticle{
		Title:      strings.TrimSpace(a.Title),
		URL:        strings.TrimSpace(a.URL),
		SourceName: strings.TrimSpace(string(a.Source)),
		Summary:    plainText(a.Description),
		Content:    cleanContent(a.Content),
		ImageURL:   strings.TrimSpace(a.URLToImage),
	}
	if a.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			raw.PublishedAt = t.UTC()
		}
	}
	return raw
}
