// File: internal/autofix/dispatcher.go
package autofix

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stitchcd/stitch/api/schemas"
)

// Dispatcher fans fix requests out to the model, one per validated task.
// Requests are single-shot: a failed or timed-out request is a recorded
// outcome, never a retry and never a reason to cancel siblings.
type Dispatcher struct {
	client  schemas.LLMClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewDispatcher wires the shared LLM client with the per-request timeout.
func NewDispatcher(client schemas.LLMClient, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("dispatcher"),
	}
}

// Dispatch sends every request concurrently and blocks until all of them
// reach a terminal state. The returned outcomes are positionally aligned
// with tasks, so ordering never depends on response arrival.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []schemas.ValidatedTask) []dispatchOutcome {
	outcomes := make([]dispatchOutcome, len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	d.logger.Info("Dispatch phase starting", zap.Int("requests", len(tasks)))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(len(tasks))

	for i, task := range tasks {
		currentIndex := i
		currentTask := task
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(groupCtx, d.timeout)
			defer cancel()

			content, err := d.client.Generate(reqCtx, buildFixRequest(currentTask))
			if err != nil {
				d.logger.Warn("Fix request failed",
					zap.Int("slot", currentTask.Slot),
					zap.String("file", currentTask.Finding.File),
					zap.String("reason", classifyDispatchError(err)),
					zap.Error(err),
				)
				outcomes[currentIndex] = dispatchOutcome{err: err}
				return nil
			}

			outcomes[currentIndex] = dispatchOutcome{content: content}
			return nil
		})
	}

	// Workers always return nil, so Wait is purely a completion barrier.
	_ = g.Wait()

	failed := 0
	for _, outcome := range outcomes {
		if outcome.err != nil {
			failed++
		}
	}
	d.logger.Info("Dispatch phase complete",
		zap.Int("requests", len(tasks)),
		zap.Int("failed", failed),
	)
	return outcomes
}

// classifyDispatchError names the failure class for skip reasons and logs.
func classifyDispatchError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "request-failed"
	}
}
