package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"skyport/pkg/logger"
)

// backgroundWorkers runs long-lived loops next to the HTTP server. Every
// worker gets the same parent context; one that fails is logged and leaves
// the others running.
type backgroundWorkers struct {
	ctx   context.Context
	group errgroup.Group
	log   *logger.Logger
}

func newBackgroundWorkers(ctx context.Context, log *logger.Logger) *backgroundWorkers {
	return &backgroundWorkers{ctx: ctx, log: log}
}

func (w *backgroundWorkers) Go(name string, run func(context.Context) error) {
	w.group.Go(func() error {
		err := run(w.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		w.log.Error("Background worker stopped", "worker", name, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	})
}

// Wait blocks until every worker has returned and reports the first failure.
func (w *backgroundWorkers) Wait() error {
	return w.group.Wait()
}
