// Package fetch adapts external news providers to story.Fetcher.
package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"storywatch/internal/story"
)

const (
	ProviderNewsAPI = "newsapi"
	ProviderRSS     = "rss"

	DefaultNewsAPIURL = "https://newsapi.org/v2/everything"
	DefaultRSSURL     = "https://news.google.com/rss/search"
	DefaultPageSize   = 10

	userAgent = "storywatch/1.0"

	// maxBodyBytes bounds how much of a provider response is read.
	maxBodyBytes = 5 << 20
)

var (
	ErrMissingAPIKey       = errors.New("news api key is not configured")
	ErrUnauthorized        = errors.New("provider rejected credentials")
	ErrUnknownProvider     = errors.New("unknown fetch provider")
	ErrRateLimited         = errors.New("provider rate limit exceeded")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrBadResponse         = errors.New("malformed provider response")
)

// Config selects and tunes a provider.
type Config struct {
	Provider   string
	APIKey     string
	NewsAPIURL string
	RSSURL     string
	PageSize   int
	Timeout    time.Duration
	// RateLimit is the sustained requests per second allowed against the
	// provider. Zero disables limiting.
	RateLimit float64
}

// New builds the configured provider.
func New(cfg Config, logger zerolog.Logger) (story.Fetcher, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	client := newHTTPClient(cfg.Timeout)
	limiter := newLimiter(cfg.RateLimit)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNewsAPI:
		endpoint := cfg.NewsAPIURL
		if endpoint == "" {
			endpoint = DefaultNewsAPIURL
		}
		c, err := NewNewsAPIClient(endpoint, cfg.APIKey, cfg.PageSize, client, limiter, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderRSS:
		endpoint := cfg.RSSURL
		if endpoint == "" {
			endpoint = DefaultRSSURL
		}
		c, err := NewRSSClient(endpoint, cfg.PageSize, client, limiter, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}
}

// statusError classifies a non-2xx provider response.
func statusError(code int, message string) error {
	detail := fmt.Sprintf("status %d", code)
	if message != "" {
		detail += ": " + message
	}
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, detail)
	default:
		return fmt.Errorf("%w: %s", ErrProviderUnavailable, detail)
	}
}
