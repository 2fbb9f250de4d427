package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"transhot/internal/logger"
)

// contextCategories are the fixed sections the model is asked to fill.
var contextCategories = []string{
	"Text type and purpose",
	"Setting (time, place, medium)",
	"Participants (speakers, characters, addressees)",
	"Relationships between participants",
	"Plot or fact anchors",
	"Terminology and domain vocabulary",
	"Proper nouns (names, brands, places) and how to render them",
	"Tone and register",
	"Linguistic features (slang, wordplay, dialect, abbreviations)",
	"Formatting constraints (length limits, casing, line breaks)",
}

// ContextRequest is one context generation call.
type ContextRequest struct {
	Image          []byte
	MimeType       string
	Texts          []string // recognized block texts
	TargetLanguage string
	APIKey         string
	Model          string
}

// ContextGenerator derives translation guidance from an image and its text.
type ContextGenerator struct {
	newClient ClientFactory
	log       zerolog.Logger
}

// NewContextGenerator creates a generator using factory for chat clients.
func NewContextGenerator(factory ClientFactory) *ContextGenerator {
	return &ContextGenerator{
		newClient: factory,
		log:       logger.WithComponent("context-generator"),
	}
}

// Generate returns the model reply verbatim. An empty string means no
// context.
func (g *ContextGenerator) Generate(ctx context.Context, req ContextRequest) (string, error) {
	const op = "Generate"
	startTime := time.Now()

	if req.APIKey == "" {
		return "", fmt.Errorf("%s: %w", op, ErrMissingAPIKey)
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: contextPrompt(req.Texts, req.TargetLanguage)},
	}
	if len(req.Image) > 0 {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	g.log.Debug().
		Str("model", model).
		Int("texts", len(req.Texts)).
		Int("image_bytes", len(req.Image)).
		Msg("Requesting translation context")

	resp, err := g.newClient(req.APIKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		err = wrapChatError(StageContext, err)
		g.log.Error().Err(err).Msg("Context request failed")
		return "", err
	}

	reply, _ := firstContent(resp)

	g.log.Info().
		Int("length", len(reply)).
		Dur("duration", time.Since(startTime)).
		Msg("Translation context generated")

	return reply, nil
}

func contextPrompt(texts []string, targetLanguage string) string {
	if targetLanguage == "" {
		targetLanguage = "Russian"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The attached image will be translated into %s. ", targetLanguage)
	sb.WriteString("Before translating, describe the context a translator needs. ")
	sb.WriteString("Answer each category below on its own line as \"<category>: <answer>\". ")
	sb.WriteString("If the image and text give no information for a category, answer \"not specified\". ")
	sb.WriteString("Do not invent facts that are not visible in the image or the text.\n\nCategories:\n")
	for i, c := range contextCategories {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}

	sb.WriteString("\nText recognized in the image:\n")
	if len(texts) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, t := range texts {
		sb.WriteString("- ")
		sb.WriteString(strings.ReplaceAll(t, "\n", " "))
		sb.WriteString("\n")
	}
	return sb.String()
}
