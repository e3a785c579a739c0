package workflow

import (
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_SetGetDelete(t *testing.T) {
	s := NewState()
	s.Set("b", 1)
	s.Set("a", "x")
	s.Set("b", 2)

	v, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, []string{"b", "a"}, s.Keys())
	assert.Equal(t, 2, s.Len())

	assert.True(t, s.Delete("b"))
	assert.False(t, s.Delete("b"))
	assert.False(t, s.Has("b"))
	assert.Equal(t, []string{"a"}, s.Keys())
}

func TestState_ValuesOmitsAbsentKeys(t *testing.T) {
	s := NewStateFrom(map[string]any{"a": 1, "b": 2})
	assert.Equal(t, map[string]any{"a": 1}, s.Values("a", "missing"))
}

func TestState_SnapshotIsCopy(t *testing.T) {
	s := NewState()
	s.Set("k", "v")
	snap := s.Snapshot()
	snap["k"] = "changed"
	v, _ := s.Get("k")
	assert.Equal(t, "v", v)
}

func TestState_InjectPlatformKeys(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	s := NewState()
	// 2024-03-15 20:30 UTC is already the 16th in Shanghai.
	s.InjectPlatformKeys(time.Date(2024, 3, 15, 20, 30, 0, 0, time.UTC), loc)

	date, _ := s.Get(KeyCurrentDate)
	tz, _ := s.Get(KeyTimezone)
	dt, _ := s.Get(KeyCurrentDatetime)
	assert.Equal(t, "2024-03-16", date)
	assert.Equal(t, "Asia/Shanghai", tz)
	assert.Equal(t, "2024-03-16T04:30:00+08:00", dt)
}

func TestState_Render(t *testing.T) {
	s := NewStateFrom(map[string]any{
		"topic": "go",
		"count": int64(3),
		"user":  map[string]any{"name": "ada", "tags": []any{"x"}},
	})

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"plain", "no placeholders", "no placeholders"},
		{"simple", "about ${topic}", "about go"},
		{"number", "${count} items", "3 items"},
		{"nested", "hi ${user.name}", "hi ada"},
		{"structured", "${user.tags}", `["x"]`},
		{"optional missing", "[${missing?}]", "[]"},
		{"optional present", "${topic?}!", "go!"},
		{"escaped", "literal $${topic}", "literal ${topic}"},
		{"spaces", "${ topic }", "go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Render(tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestState_RenderErrors(t *testing.T) {
	s := NewState()

	_, err := s.Render("${missing}")
	assert.ErrorIs(t, err, ErrMissingStateKey)

	_, err = s.Render("${unterminated")
	assert.Error(t, err)

	_, err = s.Render("${}")
	assert.Error(t, err)
}

func TestState_RenderValue(t *testing.T) {
	s := NewStateFrom(map[string]any{"city": "Paris"})
	got, err := s.RenderValue(map[string]any{
		"q":     "weather in ${city}",
		"n":     5,
		"items": []any{"${city}", true},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"q":     "weather in Paris",
		"n":     5,
		"items": []any{"Paris", true},
	}, got)
}

func TestState_ConcurrentWrites(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set("shared", i)
			_, _ = s.Get("shared")
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.True(t, s.Has("shared"))
	assert.Equal(t, 1, s.Len())
}
