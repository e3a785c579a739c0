package workflow

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runConcurrent runs units concurrently and returns their values by unit
// name. limit <= 0 means no bound.
//
// Once a unit fails, units that have not started yet are skipped; units
// already running finish. The first failure is returned after all started
// units are done.
func runConcurrent(ctx context.Context, inv *Invocation, units []Unit, limit, wave int) (map[string]any, error) {
	var (
		g       errgroup.Group
		failed  atomic.Bool
		mu      sync.Mutex
		results = make(map[string]any, len(units))
	)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, u := range units {
		u := u
		g.Go(func() error {
			if failed.Load() {
				if inv.history != nil {
					inv.history.RecordSkipped(u, wave)
				}
				inv.logger.Debug("unit skipped after sibling failure", zap.String("unit", u.Name()))
				return nil
			}
			out, err := inv.execute(ctx, u, position{wave: wave})
			if err != nil {
				failed.Store(true)
				return err
			}
			mu.Lock()
			results[u.Name()] = out
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
