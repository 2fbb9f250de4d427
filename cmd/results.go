package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"transhot/internal/archive"
	"transhot/internal/logger"
	"transhot/internal/pipeline"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored translations",
	Long: `List the translated images held in the store, most recent first.

With --origin only images seen on that site are listed, ordered by the
time they were last translated there.`,
	Example: `  # Everything, newest first
  transhot results

  # Images seen on one site, as JSON
  transhot results --origin https://shop.example.com --json`,
	Args: cobra.NoArgs,
	RunE: runResults,
}

var resultsDeleteCmd = &cobra.Command{
	Use:   "delete [hash]",
	Short: "Erase the stored results of an image so it is translated again",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsDelete,
}

var resultsImportCmd = &cobra.Command{
	Use:   "import [hash] [vision-response.json]",
	Short: "Store an externally produced Vision response under an image hash",
	Args:  cobra.ExactArgs(2),
	RunE:  runResultsImport,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsDeleteCmd, resultsImportCmd)

	resultsCmd.Flags().String("origin", "", "Only list images seen on this origin (scheme://host)")
	resultsCmd.Flags().Bool("json", false, "Output as JSON")
	resultsCmd.Flags().Int("limit", 0, "Maximum number of results (0 for all)")
}

func runResults(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("results")

	origin, _ := cmd.Flags().GetString("origin")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, cancel := createContextWithTimeout(cmd, log)
	defer cancel()

	a, err := newApp(ctx, cmd, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if origin != "" {
		origin = pipeline.Origin(origin)
	}
	results := a.orch.Results(origin)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	log.Debug().Str("origin", origin).Int("count", len(results)).Msg("Listing results")

	if jsonOutput {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No stored translations.")
		return nil
	}

	hashColor := color.New(color.FgCyan).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	for _, r := range results {
		when := "never"
		if r.UpdatedAt > 0 {
			when = time.UnixMilli(r.UpdatedAt).Format(time.RFC3339)
		}
		fmt.Printf("%s  %s  %d blocks\n", hashColor(shortHash(r.Hash)), dim(when), len(r.Entries))
		if r.ImageURL != "" {
			fmt.Printf("  %s\n", r.ImageURL)
		}
		for _, e := range r.Entries {
			fmt.Printf("  %s %s %s\n", e.OriginalText, color.GreenString("→"), e.TranslatedText)
		}
	}
	return nil
}

func runResultsDelete(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("results")

	ctx, cancel := createContextWithTimeout(cmd, log)
	defer cancel()

	a, err := newApp(ctx, cmd, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.Forget(ctx, args[0]); err != nil {
		if errors.Is(err, pipeline.ErrUnknownHash) {
			return fmt.Errorf("no stored results for %s", args[0])
		}
		return fmt.Errorf("failed to delete results: %w", err)
	}

	color.Green("Deleted stored results for %s", args[0])
	return nil
}

func runResultsImport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("results")
	hash, path := args[0], args[1]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	ctx, cancel := createContextWithTimeout(cmd, log)
	defer cancel()

	a, err := newApp(ctx, cmd, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.PersistResult(ctx, hash, json.RawMessage(data)); err != nil {
		if errors.Is(err, archive.ErrInvalidRequest) || errors.Is(err, archive.ErrInvalidHash) {
			return fmt.Errorf("refusing to import: %w", err)
		}
		return fmt.Errorf("failed to import result: %w", err)
	}

	log.Info().Str("hash", hash).Int("bytes", len(data)).Msg("Recognition result imported")
	color.Green("Imported Vision response for %s", hash)
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
