package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storywatch/internal/rss"
	"storywatch/internal/story"
)

// articleView is the shape returned by the latest-articles lookup.
type articleView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

type createStoryRequest struct {
	Keyword         string `json:"keyword"`
	SourceArticleID string `json:"sourceArticleId"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.tracker.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Health check failed")
		RespondWithError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	RespondWithMessage(w, http.StatusOK, "ok")
}

// handleNewsFetch stores the latest articles for a keyword and returns their ids.
func (s *Server) handleNewsFetch(w http.ResponseWriter, r *http.Request) {
	articles, err := s.tracker.FetchLatest(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.ID)
	}
	RespondWithData(w, http.StatusOK, ids)
}

// handleLatestArticles stores the latest articles for a keyword and returns
// a compact view of each.
func (s *Server) handleLatestArticles(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		RespondWithError(w, http.StatusBadRequest, "keyword parameter is required")
		return
	}
	articles, err := s.tracker.FetchLatest(r.Context(), keyword)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	views := make([]articleView, 0, len(articles))
	for _, a := range articles {
		view := articleView{
			ID:     a.ID,
			Title:  a.Title,
			URL:    a.URL,
			Source: a.SourceName,
		}
		if !a.PublishedAt.IsZero() {
			published := a.PublishedAt
			view.PublishedAt = &published
		}
		views = append(views, view)
	}
	RespondWithData(w, http.StatusOK, views)
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	userID, _ := getUserID(r.Context())

	var req createStoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Keyword) == "" {
		RespondWithError(w, http.StatusBadRequest, "keyword is required")
		return
	}

	st, err := s.tracker.CreateTrackedStory(r.Context(), userID, req.Keyword, strings.TrimSpace(req.SourceArticleID))
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	details, err := s.tracker.GetStoryDetails(r.Context(), st.ID)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	RespondWithData(w, http.StatusCreated, details)
}

func (s *Server) handleUserStories(w http.ResponseWriter, r *http.Request) {
	userID, _ := getUserID(r.Context())
	stories, err := s.tracker.ListTrackedStories(r.Context(), userID)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	if stories == nil {
		stories = []story.TrackedStory{}
	}
	RespondWithData(w, http.StatusOK, stories)
}

func (s *Server) handleStoryDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.tracker.GetStoryDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, story.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "tracked story not found")
			return
		}
		s.respondEngineError(w, r, err)
		return
	}
	RespondWithData(w, http.StatusOK, details)
}

func (s *Server) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	userID, _ := getUserID(r.Context())
	deleted, err := s.tracker.DeleteTrackedStory(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	if !deleted {
		RespondWithError(w, http.StatusNotFound, "tracked story not found")
		return
	}
	RespondWithMessage(w, http.StatusOK, "tracked story deleted")
}

func (s *Server) handleStoryRSS(w http.ResponseWriter, r *http.Request) {
	details, err := s.tracker.GetStoryDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, story.ErrNotFound) {
			http.Error(w, "Tracked story not found", http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Str("story_id", r.PathValue("id")).Msg("Error loading story for RSS feed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out, err := rss.Marshal(rss.StoryFeed(details, s.baseURL(r), s.now()))
	if err != nil {
		s.logger.Error().Err(err).Msg("Error marshalling RSS feed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if _, err := w.Write(out); err != nil {
		s.logger.Debug().Err(err).Msg("Error writing RSS response")
	}
}

// baseURL falls back to the request host when no public URL is configured.
func (s *Server) baseURL(r *http.Request) string {
	if s.config.BaseURL != "" {
		return s.config.BaseURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
