package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"transhot/internal/logger"
	"transhot/internal/page"
	"transhot/internal/pipeline"
	"transhot/pkg/models"
)

var bulkCmd = &cobra.Command{
	Use:   "bulk [page-url-or-directory]",
	Short: "Translate every visible image on a page or in a directory",
	Long: `Discover the visible images and videos on a web page (or the image files in
a directory) and translate them one after another.

Images translated before are counted as skipped. A failed image does not
stop the run.`,
	Example: `  # Translate all images on a page
  transhot bulk https://shop.example.com/sale

  # Translate a directory of screenshots and print the summary as JSON
  transhot bulk ./screenshots --json`,
	Args: cobra.ExactArgs(1),
	RunE: runBulk,
}

func init() {
	rootCmd.AddCommand(bulkCmd)

	bulkCmd.Flags().Bool("json", false, "Print the final progress as JSON")
	bulkCmd.Flags().String("request-id", "", "Request ID echoed in progress events (default: generated)")
	bulkCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

func runBulk(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("bulk")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	requestID, _ := cmd.Flags().GetString("request-id")
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	target := args[0]

	ctx, cancel := createContextWithTimeout(cmd, log)
	defer cancel()

	a, err := newApp(ctx, cmd, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	observe := func(p models.Progress) {
		log.Debug().
			Str("request_id", p.RequestID).
			Str("state", string(p.State)).
			Int("handled", p.Handled()).
			Int("total", p.Total).
			Msg("Bulk progress")
		if noProgress {
			return
		}
		switch p.State {
		case models.BulkTranslating:
			if bar == nil {
				bar = newProgressBar(p.Total)
			}
			_ = bar.Set(p.Handled())
		case models.BulkComplete:
			if bar != nil {
				_ = bar.Finish()
			}
		}
	}

	final, err := a.orch.RunBulk(ctx, pipeline.BulkRequest{
		RequestID: requestID,
		Discover:  discoverFunc(target),
	}, observe)
	if err != nil {
		return handlePipelineError(err, log)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(final, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%s %d translated, %d skipped, %d failed (of %d)\n",
		color.CyanString("Bulk %s:", final.RequestID),
		final.Completed, final.Skipped, final.Failed, final.Total)
	if final.Failed > 0 {
		fmt.Println(color.YellowString("Run with LOG_LEVEL=debug to see why images failed."))
	}
	return nil
}

// discoverFunc lists a directory's image files or a page's visible media.
func discoverFunc(target string) pipeline.DiscoverFunc {
	return func(ctx context.Context) ([]*models.Element, error) {
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			return page.DiscoverDir(target)
		}
		return page.Discover(ctx, nil, target)
	}
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Translating"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}
