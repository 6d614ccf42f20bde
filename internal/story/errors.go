package story

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for missing or malformed user input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidArticle is returned when a candidate article has no URL.
	ErrInvalidArticle = fmt.Errorf("%w: article url is required", ErrInvalidInput)

	// ErrNotFound is returned when a story is absent, deleted or not visible to the caller.
	ErrNotFound = errors.New("record not found")

	// ErrUpstreamUnavailable is returned when the news provider cannot serve a request.
	ErrUpstreamUnavailable = errors.New("news provider unavailable")

	// ErrStoreConflict is returned by stores when a uniqueness constraint rejects an insert.
	ErrStoreConflict = errors.New("store uniqueness conflict")

	// ErrStoreUnavailable is returned when the backing store cannot complete an operation.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// storeError classifies an error coming back from a Store. Sentinels the
// store is expected to return pass through; anything else means the store
// could not do its job.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStoreConflict) || errors.Is(err, ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func upstreamError(keyword string, err error) error {
	return fmt.Errorf("fetching %q: %w: %v", keyword, ErrUpstreamUnavailable, err)
}
