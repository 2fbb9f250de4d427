package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"transhot/internal/config"
	"transhot/internal/store"
)

var settingsKeys = []string{
	store.KeyVisionCredentials,
	store.KeyChatAPIKey,
	store.KeyChatModel,
	store.KeyContextModel,
	store.KeyContextEnabled,
	store.KeyDebugMode,
}

// LoadSettings reads the runtime settings from the store and fills the gaps
// from fallback.
func LoadSettings(ctx context.Context, st store.Store, fallback config.Settings) (config.Settings, error) {
	values, err := st.Get(ctx, settingsKeys...)
	if err != nil {
		return fallback, fmt.Errorf("load settings: %w", err)
	}

	var s config.Settings
	s.VisionCredentials = credentialsDocument(values[store.KeyVisionCredentials])

	if s.ChatAPIKey, err = store.Decode[string](values[store.KeyChatAPIKey]); err != nil {
		return fallback, fmt.Errorf("decode %s: %w", store.KeyChatAPIKey, err)
	}
	if s.Model, err = store.Decode[string](values[store.KeyChatModel]); err != nil {
		return fallback, fmt.Errorf("decode %s: %w", store.KeyChatModel, err)
	}
	if s.ContextModel, err = store.Decode[string](values[store.KeyContextModel]); err != nil {
		return fallback, fmt.Errorf("decode %s: %w", store.KeyContextModel, err)
	}

	s.ContextEnabled = fallback.ContextEnabled
	if raw, ok := values[store.KeyContextEnabled]; ok {
		enabled, err := store.Decode[bool](raw)
		if err != nil {
			return fallback, fmt.Errorf("decode %s: %w", store.KeyContextEnabled, err)
		}
		s.ContextEnabled = enabled
	}

	s.DebugMode = fallback.DebugMode
	if raw, ok := values[store.KeyDebugMode]; ok {
		debug, err := store.Decode[bool](raw)
		if err != nil {
			return fallback, fmt.Errorf("decode %s: %w", store.KeyDebugMode, err)
		}
		s.DebugMode = debug
	}

	return s.WithDefaults(fallback), nil
}

// credentialsDocument accepts the document stored either as a JSON object
// or as a JSON string holding the document text.
func credentialsDocument(raw json.RawMessage) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
		return []byte(text)
	}
	return raw
}
