package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Deduplicator resolves candidate articles to durable article rows using the
// URL as the sole identity key.
type Deduplicator struct {
	store ArticleStore
}

func NewDeduplicator(store ArticleStore) *Deduplicator {
	return &Deduplicator{store: store}
}

// Upsert returns the stored article for raw.URL, inserting it when absent.
// Existing rows are returned unchanged even if the candidate's fields differ.
// The boolean reports whether this call created the row.
func (d *Deduplicator) Upsert(ctx context.Context, raw RawArticle) (Article, bool, error) {
	if strings.TrimSpace(raw.URL) == "" {
		return Article{}, false, ErrInvalidArticle
	}

	existing, err := d.store.FindArticleByURL(ctx, raw.URL)
	if err == nil {
		return *existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Article{}, false, storeError("finding article", err)
	}

	inserted, err := d.store.InsertArticle(ctx, raw)
	if err == nil {
		return *inserted, true, nil
	}
	if !errors.Is(err, ErrStoreConflict) {
		return Article{}, false, storeError("inserting article", err)
	}

	// Lost an insert race for the same URL; the stored row wins.
	winner, err := d.store.FindArticleByURL(ctx, raw.URL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Article{}, false, fmt.Errorf("re-reading article after conflict: %w: row vanished", ErrStoreUnavailable)
		}
		return Article{}, false, storeError("re-reading article after conflict", err)
	}
	return *winner, false, nil
}
