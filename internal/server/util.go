package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"storywatch/internal/story"
)

const maxRequestBody = 1 << 20

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// RespondWithJSON sends a JSON response with the given status code and payload.
// If the payload is nil, no body is sent.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		// Headers are already out; nothing useful can be sent on failure.
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// RespondWithData wraps data in a success envelope.
func RespondWithData(w http.ResponseWriter, code int, data any) {
	RespondWithJSON(w, code, envelope{Status: "success", Data: data})
}

// RespondWithMessage sends a success envelope carrying only a message.
func RespondWithMessage(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, envelope{Status: "success", Message: message})
}

// RespondWithError sends an error envelope.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, envelope{Status: "error", Message: message})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, story.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, story.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, story.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondEngineError logs err and replies with its mapped status. Internal
// failures are not described to the client.
func (s *Server) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	message := err.Error()
	switch code {
	case http.StatusInternalServerError:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		message = "internal server error"
	case http.StatusBadGateway:
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("News provider failed")
		message = "news provider unavailable"
	}
	RespondWithError(w, code, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}
