package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
)

// routeFields are the map keys a router may use to name its selection.
var routeFields = []string{"agent", "route", "target"}

// runRouted runs router with the candidate names in its model request, then
// runs the selected candidate.
func runRouted(ctx context.Context, inv *Invocation, router Unit, candidates []Unit) (any, error) {
	names := make([]string, len(candidates))
	byName := make(map[string]Unit, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name()
		byName[c.Name()] = c
	}

	out, err := inv.execute(withCandidates(ctx, names), router, position{})
	if err != nil {
		return nil, err
	}

	selected, ok := extractRoute(out)
	chosen, known := byName[selected]
	if !ok || !known {
		return nil, types.NewError(types.ErrInvalidRoute,
			fmt.Sprintf("router selected %q, want one of [%s]", selected, strings.Join(names, ", "))).
			WithUnit(router.Name())
	}

	inv.logger.Info("route selected",
		zap.String("router", router.Name()),
		zap.String("selected", selected))
	if inv.history != nil {
		inv.history.RecordRoute(selected)
	}
	inv.recorder.RecordRoute(inv.Workflow, router.Name(), selected)
	if emit, ok := workflowStreamEmitterFromContext(ctx); ok {
		emit(WorkflowStreamEvent{Type: WorkflowEventRouteSelected, RunID: inv.RunID, Unit: router.Name(), Data: selected})
	}

	return inv.execute(ctx, chosen, position{})
}

// extractRoute reads the selection from a router value: a bare string, or a
// map carrying it under one of routeFields.
func extractRoute(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case map[string]any:
		for _, field := range routeFields {
			if s, ok := val[field].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), true
			}
		}
	case map[string]string:
		for _, field := range routeFields {
			if s := strings.TrimSpace(val[field]); s != "" {
				return s, true
			}
		}
	}
	return "", false
}
