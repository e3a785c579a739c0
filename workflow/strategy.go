package workflow

import (
	"context"

	"go.uber.org/zap"
)

// runSequential runs units in order and returns the last value. It stops at
// the first error. Inside a loop body it also stops once that loop's
// completion signal is raised, leaving the signal for the loop to consume.
func runSequential(ctx context.Context, inv *Invocation, units []Unit, iteration int) (any, error) {
	loop := loopSignalFrom(ctx)
	var last any
	for _, u := range units {
		out, err := inv.execute(ctx, u, position{iteration: iteration})
		if err != nil {
			return nil, err
		}
		last = out
		if loop.isRaised() {
			break
		}
	}
	return last, nil
}

// runLoop repeats body until the loop-completion signal is raised or
// maxIterations iterations have run. maxIterations 0 means unbounded. Each
// loop owns its signal, so sibling loops and units outside the loop cannot
// end it. The signal is checked after every body unit and the rest of the
// iteration is skipped once it is raised.
func runLoop(ctx context.Context, inv *Invocation, name string, body []Unit, maxIterations int) (any, error) {
	ctx, signal := withLoopSignal(ctx)

	var last any
	for iteration := 1; maxIterations == 0 || iteration <= maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(name, err)
		}
		for _, u := range body {
			out, err := inv.execute(ctx, u, position{iteration: iteration})
			if err != nil {
				return nil, err
			}
			last = out
			if signal.take() {
				inv.logger.Debug("loop completed by signal",
					zap.String("loop", name),
					zap.String("unit", u.Name()),
					zap.Int("iteration", iteration))
				return last, nil
			}
		}
	}
	inv.logger.Debug("loop reached max iterations",
		zap.String("loop", name),
		zap.Int("max_iterations", maxIterations))
	return last, nil
}
