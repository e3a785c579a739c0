package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs a wave plan: waves in order, units of a wave concurrently.
type Scheduler struct {
	logger         *zap.Logger
	maxConcurrency int
}

// NewScheduler creates a scheduler. maxConcurrency <= 0 leaves waves unbounded.
func NewScheduler(maxConcurrency int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger:         logger.With(zap.String("component", "dag_scheduler")),
		maxConcurrency: maxConcurrency,
	}
}

// Run executes plan. Wave i+1 starts only after every unit of wave i has
// finished, so it observes all of their writes. The first failure stops the
// run; later waves never start.
func (s *Scheduler) Run(ctx context.Context, plan Plan, graph *UnitGraph, inv *Invocation) error {
	if inv.history != nil {
		inv.history.RecordWaves(plan)
	}

	for i, wave := range plan {
		if err := ctx.Err(); err != nil {
			return cancelled("", err)
		}
		units, err := graph.lookup(wave)
		if err != nil {
			return err
		}

		s.logger.Debug("starting wave",
			zap.String("run_id", inv.RunID),
			zap.Int("wave", i),
			zap.Strings("units", wave))
		inv.recorder.RecordWave(inv.Workflow, i, len(wave))
		if emit, ok := workflowStreamEmitterFromContext(ctx); ok {
			emit(WorkflowStreamEvent{Type: WorkflowEventWaveStart, RunID: inv.RunID, Wave: i, Data: append([]string(nil), wave...)})
		}

		start := time.Now()
		if _, err := runConcurrent(ctx, inv, units, s.maxConcurrency, i); err != nil {
			s.logger.Warn("wave failed",
				zap.String("run_id", inv.RunID),
				zap.Int("wave", i),
				zap.Error(err))
			return err
		}
		s.logger.Debug("wave completed",
			zap.String("run_id", inv.RunID),
			zap.Int("wave", i),
			zap.Duration("duration", time.Since(start)))
	}
	return nil
}
