package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Platform keys injected into every run's state.
const (
	KeyCurrentDate     = "current_date"
	KeyCurrentDatetime = "current_datetime"
	KeyTimezone        = "timezone"
	// KeyInput holds the run input passed through RunOptions.
	KeyInput = "input"
)

// ErrMissingStateKey is returned when a template references an absent key.
var ErrMissingStateKey = errors.New("missing state key")

// State 是单次运行内共享的有序键值存储。
//
// 并发单元应写入互不相交的键；同一键的并发写入按最后写入生效。
// 内部锁只保证 map 本身的并发安全，不提供事务隔离。
type State struct {
	mu     sync.RWMutex
	values map[string]any
	order  []string
}

// NewState creates an empty state.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// NewStateFrom creates a state seeded from snapshot, keys in sorted order.
func NewStateFrom(snapshot map[string]any) *State {
	s := NewState()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Set(k, snapshot[k])
	}
	return s
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is set.
func (s *State) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set stores value under key. A new key is appended to the key order.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; !exists {
		s.order = append(s.order, key)
	}
	s.values[key] = value
}

// Delete removes key and reports whether it existed.
func (s *State) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; !exists {
		return false
	}
	delete(s.values, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns keys in insertion order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a shallow copy of all values.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Values returns the subset of keys that are present. Absent keys are
// omitted rather than reported as nil.
func (s *State) Values(keys ...string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			out[k] = v
		}
	}
	return out
}

// InjectPlatformKeys sets current_date, current_datetime and timezone.
func (s *State) InjectPlatformKeys(now time.Time, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	s.Set(KeyCurrentDate, local.Format("2006-01-02"))
	s.Set(KeyCurrentDatetime, local.Format(time.RFC3339))
	s.Set(KeyTimezone, loc.String())
}

// =============================================================================
// Template rendering
// =============================================================================

// Render substitutes ${key} placeholders with state values.
//
//	${key}      required, missing keys fail with ErrMissingStateKey
//	${key?}     optional, renders empty when missing
//	${a.b.c}    walks nested maps
//
// A literal "$${" renders as "${".
func (s *State) Render(template string) (string, error) {
	if !strings.Contains(template, "${") {
		return template, nil
	}

	var sb strings.Builder
	rest := template
	for {
		idx := strings.Index(rest, "${")
		if idx < 0 {
			sb.WriteString(rest)
			break
		}
		if idx > 0 && rest[idx-1] == '$' {
			sb.WriteString(rest[:idx-1])
			sb.WriteString("${")
			rest = rest[idx+2:]
			continue
		}
		sb.WriteString(rest[:idx])
		end := strings.Index(rest[idx:], "}")
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", template)
		}
		expr := strings.TrimSpace(rest[idx+2 : idx+end])
		rest = rest[idx+end+1:]

		optional := strings.HasSuffix(expr, "?")
		path := strings.TrimSuffix(expr, "?")
		if path == "" {
			return "", fmt.Errorf("empty placeholder in %q", template)
		}

		v, ok := s.lookupPath(path)
		if !ok {
			if optional {
				continue
			}
			return "", fmt.Errorf("%w: %s", ErrMissingStateKey, path)
		}
		sb.WriteString(FormatValue(v))
	}
	return sb.String(), nil
}

// RenderValue renders strings in v recursively, leaving other values as-is.
func (s *State) RenderValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return s.Render(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			r, err := s.RenderValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			r, err := s.RenderValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (s *State) lookupPath(path string) (any, bool) {
	parts := strings.Split(path, ".")
	current, ok := s.Get(parts[0])
	if !ok {
		return nil, false
	}
	for _, part := range parts[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

// FormatValue renders a state value for template substitution. Structured
// values are rendered as JSON.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
