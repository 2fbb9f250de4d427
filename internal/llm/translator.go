package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"transhot/internal/logger"
	"transhot/pkg/models"
)

// TranslateRequest is one batched translation call.
type TranslateRequest struct {
	Blocks         []models.TextBlock
	APIKey         string
	Model          string
	TargetLanguage string
	Context        string // optional guidance from ContextGenerator
}

// Translation is the aligned result of a TranslateRequest.
type Translation struct {
	Entries []models.TranslationEntry

	// Splitter names the strategy that recovered the segments; empty when
	// the whole reply was used as a single segment.
	Splitter string

	// Degraded is set when the segment count did not match the input and
	// the result was padded or truncated.
	Degraded bool
}

// Translator sends all text blocks of an image in one chat request and
// realigns the reply with the input.
type Translator struct {
	newClient ClientFactory
	splitters []Splitter
	log       zerolog.Logger
}

// NewTranslator creates a translator using factory for chat clients.
func NewTranslator(factory ClientFactory) *Translator {
	return &Translator{
		newClient: factory,
		splitters: DefaultSplitters,
		log:       logger.WithComponent("translator"),
	}
}

// Translate returns exactly len(req.Blocks) entries in input order. A
// misaligned reply is padded or truncated, never rejected.
func (t *Translator) Translate(ctx context.Context, req TranslateRequest) (*Translation, error) {
	const op = "Translate"
	startTime := time.Now()

	n := len(req.Blocks)
	if n == 0 {
		return &Translation{Entries: []models.TranslationEntry{}}, nil
	}
	if req.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingAPIKey)
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	t.log.Debug().
		Int("segments", n).
		Str("model", model).
		Bool("with_context", req.Context != "").
		Msg("Requesting translation")

	resp, err := t.newClient(req.APIKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: translationInstructions(n, req.TargetLanguage, req.Context)},
			{Role: openai.ChatMessageRoleUser, Content: joinSegments(req.Blocks)},
		},
	})
	if err != nil {
		err = wrapChatError(StageTranslate, err)
		t.log.Error().Err(err).Int("segments", n).Msg("Translation request failed")
		return nil, err
	}

	reply, ok := firstContent(resp)
	if !ok || strings.TrimSpace(reply) == "" {
		return nil, &TranslationError{Stage: StageTranslate, Detail: ErrEmptyReply.Error(), Err: ErrEmptyReply}
	}

	result := t.align(reply, req.Blocks)

	t.log.Info().
		Int("segments", n).
		Str("splitter", result.Splitter).
		Bool("degraded", result.Degraded).
		Dur("duration", time.Since(startTime)).
		Msg("Translation completed")

	return result, nil
}

// align parses reply into one entry per block.
func (t *Translator) align(reply string, blocks []models.TextBlock) *Translation {
	n := len(blocks)

	// one block: the whole reply is its translation, line breaks included
	if n == 1 {
		whole := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(reply), DelimiterToken))
		return &Translation{Entries: []models.TranslationEntry{{
			OriginalText:   blocks[0].Text,
			TranslatedText: UnmaskQuotes(stripOrdinal(whole, 1)),
			BoundingPoly:   blocks[0].BoundingPoly,
		}}}
	}

	segments, splitter := splitReply(reply, t.splitters)

	if splitter == "" {
		t.log.Warn().
			Err(ErrMalformedTranslation).
			Int("expected", n).
			Msg("Using whole reply as a single segment")
	}

	if collapsed, ok := collapseRepeats(segments, n); ok {
		t.log.Warn().
			Int("received", len(segments)).
			Int("expected", n).
			Msg("Collapsed repeated translation block")
		segments = collapsed
	}

	degraded := len(segments) != n
	if degraded {
		t.log.Warn().
			Int("received", len(segments)).
			Int("expected", n).
			Str("splitter", splitter).
			Msg("Translation count mismatch, padding or truncating")
	}
	segments = fitLength(segments, n)

	entries := make([]models.TranslationEntry, n)
	for i, b := range blocks {
		entries[i] = models.TranslationEntry{
			OriginalText:   b.Text,
			TranslatedText: UnmaskQuotes(stripOrdinal(segments[i], i+1)),
			BoundingPoly:   b.BoundingPoly,
		}
	}

	return &Translation{Entries: entries, Splitter: splitter, Degraded: degraded}
}

func joinSegments(blocks []models.TextBlock) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = strconv.Itoa(i+1) + ") " + MaskQuotes(b.Text)
	}
	return strings.Join(parts, "\n"+DelimiterToken+"\n")
}

func translationInstructions(n int, targetLanguage, guidance string) string {
	if targetLanguage == "" {
		targetLanguage = "Russian"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a professional translator. Translate each of the %d numbered segments into %s.\n", n, targetLanguage)
	fmt.Fprintf(&sb, "Segments are separated by the token %s.\n", DelimiterToken)
	fmt.Fprintf(&sb, "Reply with exactly %d translated segments in the same order, separated by the same token %s.\n", n, DelimiterToken)
	sb.WriteString("Do not include the segment numbers, the source text, explanations or any other prose.\n")
	fmt.Fprintf(&sb, "The token %s stands for a double quote; keep it unchanged wherever it appears.\n", QuoteToken)
	sb.WriteString("If a segment cannot be translated, return it unchanged.")

	if guidance = strings.TrimSpace(guidance); guidance != "" {
		sb.WriteString("\n\nUse this context about the image to choose terminology, names and tone:\n")
		sb.WriteString(guidance)
	}
	return sb.String()
}
