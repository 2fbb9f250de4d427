package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"transhot/internal/logger"
	"transhot/internal/store"
	"transhot/pkg/models"
)

// Tables are the hash-keyed results mirrored from the store. A *Tables is
// never mutated after it is published; writers build a new one.
type Tables struct {
	Processed    []string // append order
	OCR          map[string]json.RawMessage
	Translations map[string][]models.TranslationEntry
	Contexts     map[string]string
	Meta         map[string]models.ImageMeta

	processed map[string]struct{}
}

func emptyTables() *Tables {
	return &Tables{
		Processed:    []string{},
		OCR:          map[string]json.RawMessage{},
		Translations: map[string][]models.TranslationEntry{},
		Contexts:     map[string]string{},
		Meta:         map[string]models.ImageMeta{},
		processed:    map[string]struct{}{},
	}
}

// IsProcessed reports whether hash is in the processed set.
func (t *Tables) IsProcessed(hash string) bool {
	_, ok := t.processed[hash]
	return ok
}

// OCRResult decodes the stored recognition result for hash.
func (t *Tables) OCRResult(hash string) (*models.OCRResult, bool) {
	raw, ok := t.OCR[hash]
	if !ok {
		return nil, false
	}
	var r models.OCRResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false
	}
	return &r, true
}

// clone makes a shallow copy whose maps can be modified independently.
func (t *Tables) clone() *Tables {
	return &Tables{
		Processed:    slices.Clone(t.Processed),
		OCR:          maps.Clone(t.OCR),
		Translations: maps.Clone(t.Translations),
		Contexts:     maps.Clone(t.Contexts),
		Meta:         maps.Clone(t.Meta),
		processed:    maps.Clone(t.processed),
	}
}

func (t *Tables) setProcessed(hashes []string) {
	t.Processed = make([]string, 0, len(hashes))
	t.processed = make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		if _, dup := t.processed[h]; dup || h == "" {
			continue
		}
		t.processed[h] = struct{}{}
		t.Processed = append(t.Processed, h)
	}
}

func (t *Tables) addProcessed(hash string) {
	if t.IsProcessed(hash) {
		return
	}
	t.processed[hash] = struct{}{}
	t.Processed = append(t.Processed, hash)
}

func (t *Tables) removeProcessed(hash string) {
	if !t.IsProcessed(hash) {
		return
	}
	delete(t.processed, hash)
	t.Processed = slices.DeleteFunc(t.Processed, func(h string) bool { return h == hash })
}

// repair drops processed hashes that have no translation entry.
func (t *Tables) repair() []string {
	var dropped []string
	for _, h := range t.Processed {
		if _, ok := t.Translations[h]; !ok {
			dropped = append(dropped, h)
		}
	}
	for _, h := range dropped {
		t.removeProcessed(h)
	}
	return dropped
}

var stateKeys = []string{
	store.KeyProcessedHashes,
	store.KeyVisionResults,
	store.KeyTranslationResults,
	store.KeyTranslationContexts,
	store.KeyImageMeta,
}

// State is the session's view of the store: the processed set and result
// maps, replaced wholesale on every change so readers never see a partial
// update.
type State struct {
	current atomic.Pointer[Tables]
	mu      sync.Mutex // serializes writers
	log     zerolog.Logger
}

// NewState creates an empty state.
func NewState() *State {
	s := &State{log: logger.WithComponent("pipeline-state")}
	s.current.Store(emptyTables())
	return s
}

// Tables returns the current read-only tables.
func (s *State) Tables() *Tables {
	return s.current.Load()
}

// Load replaces the state with the store's contents.
func (s *State) Load(ctx context.Context, st store.Store) error {
	values, err := st.Get(ctx, stateKeys...)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := emptyTables()
	if err := next.apply(values); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if dropped := next.repair(); len(dropped) > 0 {
		s.log.Warn().
			Strs("hashes", dropped).
			Msg("Processed hashes without translations will be translated again")
	}
	s.current.Store(next)

	s.log.Info().
		Int("processed", len(next.Processed)).
		Int("ocr_results", len(next.OCR)).
		Int("translations", len(next.Translations)).
		Msg("State loaded")
	return nil
}

// Apply merges a store change notification. Unrelated keys are ignored.
func (s *State) Apply(changes map[string]json.RawMessage) {
	relevant := false
	for _, k := range stateKeys {
		if _, ok := changes[k]; ok {
			relevant = true
			break
		}
	}
	if !relevant {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	if err := next.apply(changes); err != nil {
		s.log.Warn().Err(err).Msg("Ignoring undecodable store change")
		return
	}
	if dropped := next.repair(); len(dropped) > 0 {
		s.log.Warn().
			Strs("hashes", dropped).
			Msg("Processed hashes without translations will be translated again")
	}
	s.current.Store(next)
}

// update publishes fn's modifications to a copy of the current tables.
func (s *State) update(fn func(t *Tables)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	fn(next)
	s.current.Store(next)
}

func (t *Tables) apply(values map[string]json.RawMessage) error {
	if raw, ok := values[store.KeyProcessedHashes]; ok {
		hashes, err := store.Decode[[]string](raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", store.KeyProcessedHashes, err)
		}
		t.setProcessed(hashes)
	}
	if raw, ok := values[store.KeyVisionResults]; ok {
		m, err := store.Decode[map[string]json.RawMessage](raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", store.KeyVisionResults, err)
		}
		t.OCR = orEmpty(m)
	}
	if raw, ok := values[store.KeyTranslationResults]; ok {
		m, err := store.Decode[map[string][]models.TranslationEntry](raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", store.KeyTranslationResults, err)
		}
		t.Translations = orEmpty(m)
	}
	if raw, ok := values[store.KeyTranslationContexts]; ok {
		m, err := store.Decode[map[string]string](raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", store.KeyTranslationContexts, err)
		}
		t.Contexts = orEmpty(m)
	}
	if raw, ok := values[store.KeyImageMeta]; ok {
		m, err := store.Decode[map[string]models.ImageMeta](raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", store.KeyImageMeta, err)
		}
		t.Meta = orEmpty(m)
	}
	return nil
}

func orEmpty[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
