package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"transhot/internal/logger"
	"transhot/pkg/models"
)

// DiscoverFunc lists the elements of a bulk run.
type DiscoverFunc func(ctx context.Context) ([]*models.Element, error)

// ProgressFunc observes bulk progress. It is called synchronously.
type ProgressFunc func(models.Progress)

// BulkRequest describes one bulk run.
type BulkRequest struct {
	// RequestID is echoed in every progress event; generated when empty.
	RequestID string
	Discover  DiscoverFunc
}

// RunBulk discovers elements and runs the pipeline on each, strictly one
// after another. It returns the final progress. A cancelled context stops
// the run between elements.
func (o *Orchestrator) RunBulk(ctx context.Context, req BulkRequest, observe ProgressFunc) (models.Progress, error) {
	const op = "RunBulk"

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if observe == nil {
		observe = func(models.Progress) {}
	}
	log := logger.WithRequestID(req.RequestID).With().Str("component", "pipeline-bulk").Logger()
	startTime := time.Now()

	progress := models.Progress{RequestID: req.RequestID, State: models.BulkDiscovering}
	observe(progress)

	elements, err := req.Discover(ctx)
	if err != nil {
		progress.State = models.BulkComplete
		observe(progress)
		return progress, fmt.Errorf("%s: discover: %w", op, err)
	}

	progress.State = models.BulkTranslating
	progress.Total = len(elements)
	observe(progress)
	log.Info().Int("total", progress.Total).Msg("Bulk translation started")

	for i, el := range elements {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("handled", i).Msg("Bulk translation cancelled")
			progress.State = models.BulkComplete
			observe(progress)
			return progress, fmt.Errorf("%s: %w", op, err)
		}

		res := o.Run(ctx, el)
		switch {
		case res.Outcome == OutcomeTranslated:
			progress.Completed++
		case res.Outcome.Skipped():
			progress.Skipped++
		default:
			progress.Failed++
		}
		observe(progress)
	}

	progress.State = models.BulkComplete
	observe(progress)

	log.Info().
		Int("total", progress.Total).
		Int("completed", progress.Completed).
		Int("skipped", progress.Skipped).
		Int("failed", progress.Failed).
		Dur("duration", time.Since(startTime)).
		Msg("Bulk translation finished")

	return progress, nil
}
