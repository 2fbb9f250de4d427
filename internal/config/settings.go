package config

// Settings are the user-adjustable values the pipeline reads on every run.
// Values persisted in the store override the ones from Config.
type Settings struct {
	VisionAPIKey      string
	VisionCredentials []byte
	ChatAPIKey        string
	Model             string
	ContextModel      string
	ContextEnabled    bool
	TargetLanguage    string
	DebugMode         bool
}

// WithDefaults fills empty fields from fallback.
func (s Settings) WithDefaults(fallback Settings) Settings {
	if s.VisionAPIKey == "" {
		s.VisionAPIKey = fallback.VisionAPIKey
	}
	if len(s.VisionCredentials) == 0 {
		s.VisionCredentials = fallback.VisionCredentials
	}
	if s.ChatAPIKey == "" {
		s.ChatAPIKey = fallback.ChatAPIKey
	}
	if s.Model == "" {
		s.Model = fallback.Model
	}
	if s.ContextModel == "" {
		s.ContextModel = fallback.ContextModel
	}
	if s.ContextModel == "" {
		s.ContextModel = s.Model
	}
	if s.TargetLanguage == "" {
		s.TargetLanguage = fallback.TargetLanguage
	}
	return s
}
