package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"transhot/internal/auth"
	"transhot/internal/llm"
	"transhot/internal/logger"
	"transhot/internal/ocr"
	"transhot/internal/pipeline"
	"transhot/internal/snapshot"
	"transhot/pkg/models"
)

var translateCmd = &cobra.Command{
	Use:   "translate [image]",
	Short: "Recognize and translate the text in one image",
	Long: `Recognize the text in an image with Google Cloud Vision and translate it.

The image may be an http(s) URL, a data: URL, a file: URL or a local path.
An image whose bytes were translated before is answered from the store
without any network call.

Required configuration:
  GOOGLE_VISION_API_KEY, GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS
  OPENAI_API_KEY`,
	Example: `  # Translate a local screenshot
  transhot translate screenshot.png

  # Translate an image seen on a page, recording the page origin
  transhot translate https://cdn.example.com/banner.png --page https://shop.example.com/sale

  # Write the result as JSON
  transhot translate banner.png --json -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

// TranslateOutput is the JSON output of the translate command.
type TranslateOutput struct {
	Source             string                    `json:"source"`
	Hash               string                    `json:"hash"`
	Outcome            string                    `json:"outcome"`
	Context            string                    `json:"context,omitempty"`
	Degraded           bool                      `json:"degraded,omitempty"`
	Entries            []models.TranslationEntry `json:"entries"`
	ProcessingDuration string                    `json:"processing_duration,omitempty"`
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	translateCmd.Flags().Bool("json", false, "Output as JSON")
	translateCmd.Flags().String("page", "", "URL of the page the image was found on")
	translateCmd.Flags().Bool("video", false, "Treat the source as a video element")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("translate")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	pageURL, _ := cmd.Flags().GetString("page")
	video, _ := cmd.Flags().GetBool("video")

	el, err := elementFromArg(args[0], pageURL, video)
	if err != nil {
		return err
	}

	log.Info().
		Str("kind", string(el.Kind)).
		Str("page", pageURL).
		Bool("json", jsonOutput).
		Msg("Starting translation")

	ctx, cancel := createContextWithTimeout(cmd, log)
	defer cancel()

	a, err := newApp(ctx, cmd, log)
	if err != nil {
		return err
	}
	defer a.Close()

	startTime := time.Now()
	res := a.orch.Run(ctx, el)
	duration := time.Since(startTime)

	switch res.Outcome {
	case pipeline.OutcomeFailed:
		return handlePipelineError(res.Err, log)
	case pipeline.OutcomeSkippedUnsupported:
		return fmt.Errorf("this element cannot be translated: only images and videos with a poster frame are supported")
	}

	log.Info().
		Str("hash", res.Hash).
		Str("outcome", string(res.Outcome)).
		Int("entries", len(res.Entries)).
		Dur("duration", duration).
		Msg("Translation completed")

	return outputTranslation(TranslateOutput{
		Source:             args[0],
		Hash:               res.Hash,
		Outcome:            string(res.Outcome),
		Context:            res.Context,
		Degraded:           res.Degraded,
		Entries:            res.Entries,
		ProcessingDuration: duration.String(),
	}, outputPath, jsonOutput, log)
}

// elementFromArg turns a command-line source into an element. Local paths
// are made absolute and checked before any pipeline work starts.
func elementFromArg(src, pageURL string, video bool) (*models.Element, error) {
	kind := models.ElementImage
	if video {
		kind = models.ElementVideo
	}

	if !strings.Contains(src, "://") && !strings.HasPrefix(src, "data:") {
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", src, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("image file not found: %s", src)
			}
			return nil, fmt.Errorf("error accessing image file: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("path is not a regular file: %s", src)
		}
		if info.Size() > ocr.MaxImageSizeBytes {
			return nil, fmt.Errorf("image file too large (%d bytes). Maximum size is %d bytes (20MB)",
				info.Size(), ocr.MaxImageSizeBytes)
		}
		src = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}

	return &models.Element{Kind: kind, Src: src, PageURL: pageURL}, nil
}

// handlePipelineError provides user-friendly messages for pipeline failures
func handlePipelineError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Translation failed")

	var (
		missing     *auth.CredentialsMissingError
		exchange    *auth.TokenExchangeError
		recognition *ocr.RecognitionError
		translation *llm.TranslationError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("translation timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("translation was canceled")
	case errors.As(err, &missing):
		return fmt.Errorf("%s credentials are not configured. See the hint above or run 'transhot settings --help'", missing.Service)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidPrivateKey):
		return fmt.Errorf("the stored Vision credentials document is invalid: %w", err)
	case errors.As(err, &exchange):
		return fmt.Errorf("Google rejected the service account (HTTP %d). Check that the key is active and has the 'Cloud Vision API User' role: %s",
			exchange.Status, exchange.Body)
	case errors.Is(err, snapshot.ErrUnsupportedElement):
		return fmt.Errorf("this element cannot be translated")
	case errors.Is(err, snapshot.ErrFetchFailed), errors.Is(err, snapshot.ErrEmptyPayload):
		return fmt.Errorf("could not read the image bytes: %w", err)
	case errors.Is(err, ocr.ErrImageTooLarge):
		return fmt.Errorf("image is too large for Vision (maximum 20MB)")
	case errors.As(err, &recognition):
		return fmt.Errorf("Google Cloud Vision %s: %s", statusHint(recognition.Status), recognition.Detail)
	case errors.As(err, &translation):
		if translation.Status > 0 {
			return fmt.Errorf("chat service %s during %s: %s", statusHint(translation.Status), translation.Stage, translation.Detail)
		}
		return fmt.Errorf("chat service unavailable during %s: %s", translation.Stage, translation.Detail)
	default:
		return fmt.Errorf("translation failed: %w", err)
	}
}

func statusHint(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "rejected the credentials (401)"
	case http.StatusForbidden:
		return "denied access (403). Check that the API is enabled for the project"
	case http.StatusTooManyRequests:
		return "quota exceeded (429)"
	default:
		return fmt.Sprintf("failed with HTTP %d", status)
	}
}

// outputTranslation formats and outputs one translation
func outputTranslation(out TranslateOutput, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	var data []byte

	if jsonOutput {
		var err error
		data, err = json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		data = append(data, '\n')
	} else {
		data = []byte(formatEntries(out))
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0o644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}
		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(data)).
			Msg("Translation written to file")
		return nil
	}

	if _, err := os.Stdout.Write(data); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func formatEntries(out TranslateOutput) string {
	var b strings.Builder

	header := color.New(color.FgCyan, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(&b, "%s %s\n", header("==="), header(out.Hash))
	if out.Outcome == string(pipeline.OutcomeSkippedProcessed) {
		fmt.Fprintln(&b, dim("(stored result)"))
	}
	if out.Degraded {
		fmt.Fprintln(&b, color.YellowString("warning: the reply did not split cleanly; some lines may be misaligned"))
	}
	if out.Context != "" {
		fmt.Fprintf(&b, "%s\n%s\n\n", dim("context:"), out.Context)
	}
	if len(out.Entries) == 0 {
		fmt.Fprintln(&b, dim("no text found"))
	}
	for _, e := range out.Entries {
		fmt.Fprintf(&b, "%s\n  %s %s\n", e.OriginalText, color.GreenString("→"), e.TranslatedText)
	}
	return b.String()
}
