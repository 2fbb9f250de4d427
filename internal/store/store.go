// Package store is the key-value storage collaborator: get a set of keys,
// set a mapping, and observe changes. Values are JSON documents.
//
// Backends:
//   - SQLiteStore: a single-file durable store (default)
//   - RedisStore: shared store whose change feed crosses processes via pub/sub
//   - MemoryStore: process-local, used by tests and --store=memory
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Keys used by the pipeline and the settings loader.
const (
	KeyProcessedHashes     = "transhotProcessedHashes"
	KeyVisionResults       = "transhotVisionResults"
	KeyTranslationResults  = "transhotTranslationResults"
	KeyTranslationContexts = "transhotTranslationContexts"
	KeyImageMeta           = "transhotImageMeta"
	KeyVisionCredentials   = "googleVisionCredsData"
	KeyChatAPIKey          = "chatgptApiKey"
	KeyChatModel           = "chatgptModel"
	KeyContextModel        = "chatgptContextModel"
	KeyContextEnabled      = "chatgptContextEnabled"
	KeyDebugMode           = "transhotDebugMode"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// ChangeFunc receives the keys written by one Set call with their new values.
type ChangeFunc func(changes map[string]json.RawMessage)

// Store is the storage collaborator.
type Store interface {
	// Get returns the stored values for keys. Missing keys are absent from
	// the result.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)

	// Set JSON-encodes every value and writes the mapping. Backends apply the
	// whole mapping atomically where they can.
	Set(ctx context.Context, values map[string]any) error

	// OnChange registers fn for every successful Set, including Sets made by
	// other processes on shared backends. The returned func unregisters it.
	OnChange(fn ChangeFunc) (cancel func())

	Close() error
}

// GetJSON decodes a single key into T. ok is false when the key is absent.
func GetJSON[T any](ctx context.Context, s Store, key string) (value T, ok bool, err error) {
	values, err := s.Get(ctx, key)
	if err != nil {
		return value, false, err
	}
	raw, found := values[key]
	if !found || len(raw) == 0 || string(raw) == "null" {
		return value, false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return value, true, nil
}

// Decode decodes raw into T, returning the zero value for absent or null input.
func Decode[T any](raw json.RawMessage) (T, error) {
	var value T
	if len(raw) == 0 || string(raw) == "null" {
		return value, nil
	}
	err := json.Unmarshal(raw, &value)
	return value, err
}

func encode(values map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		if raw, ok := v.(json.RawMessage); ok {
			out[k] = raw
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("store: encode %s: %w", k, err)
		}
		out[k] = b
	}
	return out, nil
}

// listeners fans out change notifications.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]ChangeFunc
}

func (l *listeners) add(fn ChangeFunc) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]ChangeFunc)
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) notify(changes map[string]json.RawMessage) {
	l.mu.Lock()
	fns := make([]ChangeFunc, 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(changes)
	}
}
