package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/workflow"
)

// =============================================================================
// 🧪 存储契约测试：每个后端都必须满足
// =============================================================================

func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, workflow.ErrSessionNotFound)

	snap := Snapshot{
		"count":  int64(3),
		"ratio":  0.5,
		"name":   "alice",
		"ok":     true,
		"none":   nil,
		"items":  []any{int64(1), "two"},
		"nested": map[string]any{"depth": int64(2)},
	}
	require.NoError(t, store.Save(ctx, "user/42", snap))

	got, err := store.Load(ctx, "user/42")
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	// 修改返回值不影响存储
	got["count"] = int64(99)
	again, err := store.Load(ctx, "user/42")
	require.NoError(t, err)
	assert.Equal(t, int64(3), again["count"])

	// 覆盖写
	require.NoError(t, store.Save(ctx, "user/42", Snapshot{"count": int64(4)}))
	got, err = store.Load(ctx, "user/42")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{"count": int64(4)}, got)

	require.NoError(t, store.Delete(ctx, "user/42"))
	_, err = store.Load(ctx, "user/42")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, "user/42"), "deleting a missing session is not an error")

	assert.Error(t, store.Save(ctx, "", Snapshot{}))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	testStoreContract(t, store)

	require.NoError(t, store.Close())
	_, err := store.Load(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	testStoreContract(t, store)

	// ID 被转义，文件留在目录内
	require.NoError(t, store.Save(context.Background(), "../escape", Snapshot{"a": "b"}))
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, dir, filepath.Dir(matches[0]))

	_, err = NewFileStore("", nil)
	assert.Error(t, err)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()
	config.TTL = time.Hour

	store, err := NewRedisStore(context.Background(), config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func TestRedisStore(t *testing.T) {
	_, store := setupTestRedis(t)
	testStoreContract(t, store)
}

func TestRedisStore_KeyPrefixAndTTL(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", Snapshot{"k": "v"}))
	assert.True(t, mr.Exists("agentpipe:session:s1"))
	assert.Equal(t, time.Hour, mr.TTL("agentpipe:session:s1"))

	raw, err := mr.Get("agentpipe:session:s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, raw)

	mr.FastForward(2 * time.Hour)
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ClosedAndUnreachable(t *testing.T) {
	_, store := setupTestRedis(t)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.Load(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.Save(context.Background(), "x", nil), ErrClosed)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisStore(context.Background(), RedisConfig{Addr: addr}, nil)
	assert.Error(t, err)
}

func TestSQLStore_SQLite(t *testing.T) {
	config := DefaultSQLConfig()
	config.Name = filepath.Join(t.TempDir(), "sessions.db")
	config.MaxOpenConns = 1

	store, err := OpenSQLStore(config, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	testStoreContract(t, store)
	assert.Equal(t, 1, store.Stats().MaxOpenConnections)
}

func TestDecodeSnapshot_Numbers(t *testing.T) {
	got, err := decodeSnapshot([]byte(`{"i": 7, "f": 1.25, "big": 1e3, "list": [1, 2.5], "m": {"n": 0}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), got["i"])
	assert.Equal(t, 1.25, got["f"])
	assert.Equal(t, float64(1000), got["big"])
	assert.Equal(t, []any{int64(1), 2.5}, got["list"])
	assert.Equal(t, map[string]any{"n": int64(0)}, got["m"])

	empty, err := decodeSnapshot([]byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, empty)

	_, err = decodeSnapshot([]byte(`[1]`))
	assert.Error(t, err)
}

func TestStore_ResumesOrchestratorSessions(t *testing.T) {
	store := NewMemoryStore()
	counter, err := workflow.NewExpressionUnit("inc", "", "count", []string{"count"}, "count + 1")
	require.NoError(t, err)
	graph := workflow.NewUnitGraph()
	require.NoError(t, graph.Add(counter))
	wf, err := workflow.NewWorkflow("counter", "", graph, workflow.Orchestration{Strategy: workflow.StrategySequential, Members: []string{"inc"}})
	require.NoError(t, err)
	wf = wf.WithVariables(workflow.Variable{Name: "count", Default: int64(0)})

	orch := workflow.NewOrchestrator(nil, workflow.EngineOptions{Sessions: store}, nil)
	for i := 1; i <= 3; i++ {
		res, err := orch.Run(context.Background(), wf, workflow.RunOptions{SessionID: "s"})
		require.NoError(t, err)
		assert.EqualValues(t, i, res.State["count"])
	}
	snap, err := store.Load(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap["count"])
}
