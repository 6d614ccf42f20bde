// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"storywatch/internal/story"
)

// Tracker is the story engine as seen by the HTTP layer.
type Tracker interface {
	CreateTrackedStory(ctx context.Context, userID, keyword, sourceArticleID string) (*story.TrackedStory, error)
	GetStoryDetails(ctx context.Context, storyID string) (*story.StoryDetails, error)
	ListTrackedStories(ctx context.Context, userID string) ([]story.TrackedStory, error)
	DeleteTrackedStory(ctx context.Context, userID, storyID string) (bool, error)
	FetchLatest(ctx context.Context, keyword string) ([]story.Article, error)
	Ping(ctx context.Context) error
}

// Authenticator turns a bearer token into a user id.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

type Config struct {
	// BaseURL is the public root used for links in RSS feeds.
	BaseURL        string
	// AllowedOrigin is sent as Access-Control-Allow-Origin. Empty disables CORS headers.
	AllowedOrigin  string
	// ProductionMode assumes HTTPS termination in front of the server.
	ProductionMode bool
}

type Server struct {
	tracker Tracker
	auth    Authenticator
	logger  zerolog.Logger
	config  Config
	now     func() time.Time

	httpServer *http.Server
}

func NewServer(tracker Tracker, auth Authenticator, logger zerolog.Logger, config Config) (*Server, error) {
	if tracker == nil {
		return nil, errors.New("server requires a tracker")
	}
	if auth == nil {
		return nil, errors.New("server requires an authenticator")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	s := &Server{
		tracker: tracker,
		auth:    auth,
		logger:  logger.With().Str("component", "server").Logger(),
		config:  config,
		now:     time.Now,
	}
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Story creation waits on the news provider.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/news/fetch", s.handleNewsFetch)
	mux.HandleFunc("GET /api/story_tracking", s.handleLatestArticles)
	mux.HandleFunc("POST /api/story_tracking", s.requireAuth(s.handleCreateStory))
	mux.HandleFunc("GET /api/story_tracking/user", s.requireAuth(s.handleUserStories))
	mux.HandleFunc("GET /api/story_tracking/{id}", s.requireAuth(s.handleStoryDetails))
	mux.HandleFunc("DELETE /api/story_tracking/{id}", s.requireAuth(s.handleDeleteStory))
	mux.HandleFunc("GET /api/story_tracking/{id}/rss", s.handleStoryRSS)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, http.StatusNotFound, "not found")
	})

	return s.logRequests(s.recoverPanics(s.securityHeaders(s.cors(gzipMiddleware(mux)))))
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.httpServer.Addr = addr
	s.logger.Info().Str("addr", addr).Msg("Starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
