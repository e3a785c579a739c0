package workflow

import (
	"sort"
	"sync"
	"time"
)

// ExecutionStatus represents the status of a run or a unit execution
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the execution is in progress
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates the execution completed successfully
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates the execution failed
	ExecutionStatusFailed ExecutionStatus = "failed"
	// ExecutionStatusSkipped marks units never started because a sibling failed
	ExecutionStatusSkipped ExecutionStatus = "skipped"
)

// UnitExecution records one execution of a unit. Loops produce one record
// per iteration.
type UnitExecution struct {
	Unit      string          `json:"unit"`
	Kind      Kind            `json:"kind"`
	Iteration int             `json:"iteration,omitempty"`
	Wave      int             `json:"wave,omitempty"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Status    ExecutionStatus `json:"status"`
	OutputKey string          `json:"output_key,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// RunHistory records the execution path of one workflow run.
type RunHistory struct {
	RunID     string           `json:"run_id"`
	TraceID   string           `json:"trace_id,omitempty"`
	Workflow  string           `json:"workflow"`
	Strategy  Strategy         `json:"strategy"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"duration"`
	Status    ExecutionStatus  `json:"status"`
	Units     []*UnitExecution `json:"units"`
	Waves     [][]string       `json:"waves,omitempty"`
	Route     string           `json:"route,omitempty"`
	Error     string           `json:"error,omitempty"`
	mu        sync.RWMutex
	clock     func() time.Time
}

// NewRunHistory creates a history in the running state.
func NewRunHistory(runID, workflow string, strategy Strategy, clock func() time.Time) *RunHistory {
	if clock == nil {
		clock = time.Now
	}
	return &RunHistory{
		RunID:     runID,
		Workflow:  workflow,
		Strategy:  strategy,
		StartTime: clock(),
		Status:    ExecutionStatusRunning,
		Units:     make([]*UnitExecution, 0),
		clock:     clock,
	}
}

// RecordUnitStart records the start of a unit execution
func (h *RunHistory) RecordUnitStart(u Unit, iteration, wave int) *UnitExecution {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := &UnitExecution{
		Unit:      u.Name(),
		Kind:      u.Kind(),
		Iteration: iteration,
		Wave:      wave,
		StartTime: h.clock(),
		Status:    ExecutionStatusRunning,
		OutputKey: u.OutputKey(),
	}
	h.Units = append(h.Units, rec)
	return rec
}

// RecordUnitEnd records the end of a unit execution
func (h *RunHistory) RecordUnitEnd(rec *UnitExecution, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec.EndTime = h.clock()
	rec.Duration = rec.EndTime.Sub(rec.StartTime)
	if err != nil {
		rec.Status = ExecutionStatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = ExecutionStatusCompleted
	}
}

// RecordSkipped records a unit that was never started.
func (h *RunHistory) RecordSkipped(u Unit, wave int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.clock()
	h.Units = append(h.Units, &UnitExecution{
		Unit:      u.Name(),
		Kind:      u.Kind(),
		Wave:      wave,
		StartTime: now,
		EndTime:   now,
		Status:    ExecutionStatusSkipped,
		OutputKey: u.OutputKey(),
	})
}

// RecordWaves stores the DAG wave plan used by the run.
func (h *RunHistory) RecordWaves(plan Plan) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Waves = plan.Clone()
}

// RecordRoute stores the router's selection.
func (h *RunHistory) RecordRoute(selected string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Route = selected
}

// Complete marks the run as finished
func (h *RunHistory) Complete(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = h.clock()
	h.Duration = h.EndTime.Sub(h.StartTime)
	if err != nil {
		h.Status = ExecutionStatusFailed
		h.Error = err.Error()
	} else {
		h.Status = ExecutionStatusCompleted
	}
}

// GetUnits returns a copy of the unit records
func (h *RunHistory) GetUnits() []UnitExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]UnitExecution, len(h.Units))
	for i, rec := range h.Units {
		out[i] = *rec
	}
	return out
}

// ExecutionsOf returns the records of one unit in start order.
func (h *RunHistory) ExecutionsOf(unit string) []UnitExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []UnitExecution
	for _, rec := range h.Units {
		if rec.Unit == unit {
			out = append(out, *rec)
		}
	}
	return out
}

// GetStatus returns the run status.
func (h *RunHistory) GetStatus() ExecutionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Status
}

// =============================================================================
// HistoryStore
// =============================================================================

// HistoryStore keeps run histories in memory, bounded by capacity. The oldest
// run is evicted first.
type HistoryStore struct {
	histories map[string]*RunHistory
	order     []string
	capacity  int
	mu        sync.RWMutex
}

// NewHistoryStore creates a store. capacity <= 0 means unbounded.
func NewHistoryStore(capacity int) *HistoryStore {
	return &HistoryStore{
		histories: make(map[string]*RunHistory),
		capacity:  capacity,
	}
}

// Save stores history, evicting the oldest entry when full.
func (s *HistoryStore) Save(history *RunHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.histories[history.RunID]; !exists {
		s.order = append(s.order, history.RunID)
	}
	s.histories[history.RunID] = history
	for s.capacity > 0 && len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.histories, oldest)
	}
}

// Get retrieves a history by run id
func (s *HistoryStore) Get(runID string) (*RunHistory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[runID]
	return h, ok
}

// ListByWorkflow returns runs of one workflow, oldest first
func (s *HistoryStore) ListByWorkflow(workflow string) []*RunHistory {
	return s.filter(func(h *RunHistory) bool { return h.Workflow == workflow })
}

// ListByStatus returns runs with a specific status, oldest first
func (s *HistoryStore) ListByStatus(status ExecutionStatus) []*RunHistory {
	return s.filter(func(h *RunHistory) bool { return h.GetStatus() == status })
}

func (s *HistoryStore) filter(keep func(*RunHistory) bool) []*RunHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*RunHistory
	for _, id := range s.order {
		if h := s.histories[id]; keep(h) {
			result = append(result, h)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result
}
