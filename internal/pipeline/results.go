package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"transhot/internal/archive"
	"transhot/internal/store"
	"transhot/pkg/models"
)

// ErrUnknownHash is returned when deleting a hash with no stored results.
var ErrUnknownHash = errors.New("no stored results for hash")

// StoredResult is one translated image as listed by Results.
type StoredResult struct {
	Hash      string                    `json:"hash"`
	ImageURL  string                    `json:"imageUrl,omitempty"`
	UpdatedAt int64                     `json:"updatedAt"`
	Pages     []models.PageVisit        `json:"pages,omitempty"`
	Context   string                    `json:"context,omitempty"`
	Entries   []models.TranslationEntry `json:"entries"`
}

// Results lists processed hashes, most recent first. A non-empty origin
// keeps only images seen on that origin and sorts by that visit.
func (o *Orchestrator) Results(origin string) []StoredResult {
	t := o.state.Tables()

	out := make([]StoredResult, 0, len(t.Processed))
	for _, hash := range t.Processed {
		meta := t.Meta[hash]
		updated := meta.LatestVisit().UpdatedAt
		if origin != "" {
			visit, ok := meta.Visit(origin)
			if !ok {
				continue
			}
			updated = visit.UpdatedAt
		}
		out = append(out, StoredResult{
			Hash:      hash,
			ImageURL:  meta.ImageURL,
			UpdatedAt: updated,
			Pages:     meta.Pages,
			Context:   t.Contexts[hash],
			Entries:   t.Translations[hash],
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out
}

// Forget erases every stored result for hash in one write, so the next run
// translates the image again.
func (o *Orchestrator) Forget(ctx context.Context, hash string) error {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	current := o.state.Tables()
	_, hasOCR := current.OCR[hash]
	_, hasTranslation := current.Translations[hash]
	_, hasMeta := current.Meta[hash]
	if !current.IsProcessed(hash) && !hasOCR && !hasTranslation && !hasMeta {
		return fmt.Errorf("forget %s: %w", hash, ErrUnknownHash)
	}

	next := current.clone()
	next.removeProcessed(hash)
	delete(next.OCR, hash)
	delete(next.Translations, hash)
	delete(next.Contexts, hash)
	delete(next.Meta, hash)

	if err := o.deps.Store.Set(ctx, map[string]any{
		store.KeyProcessedHashes:     next.Processed,
		store.KeyVisionResults:       next.OCR,
		store.KeyTranslationResults:  next.Translations,
		store.KeyTranslationContexts: next.Contexts,
		store.KeyImageMeta:           next.Meta,
	}); err != nil {
		return fmt.Errorf("forget %s: %w", hash, err)
	}

	o.state.update(func(t *Tables) {
		t.removeProcessed(hash)
		delete(t.OCR, hash)
		delete(t.Translations, hash)
		delete(t.Contexts, hash)
		delete(t.Meta, hash)
	})

	o.log.Info().Str("hash", hash).Msg("Stored results erased")
	return nil
}

// PersistResult stores an externally produced recognition payload under
// hash, in the store and, when configured, in the archive directory.
func (o *Orchestrator) PersistResult(ctx context.Context, hash string, data json.RawMessage) error {
	req := archive.Request{Hash: hash, Name: "vision", Data: data}
	if err := archive.Validate(req); err != nil {
		return err
	}

	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	visionResults := cloneWith(o.state.Tables().OCR, hash, data)
	if err := o.deps.Store.Set(ctx, map[string]any{store.KeyVisionResults: visionResults}); err != nil {
		return fmt.Errorf("persist result %s: %w", hash, err)
	}
	o.state.update(func(t *Tables) { t.OCR[hash] = data })

	if o.deps.Archive != nil {
		if _, err := o.deps.Archive.Persist(ctx, req); err != nil {
			return fmt.Errorf("persist result %s: %w", hash, err)
		}
	}
	return nil
}
