package datasource

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metadata-pipeline/metadatapipeline/pkg/testhelpers"
)

func TestConnectionManager_GetOrCreatePool_Reuse(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	logger := zaptest.NewLogger(t)

	cfg := ConnectionManagerConfig{TTL: 5 * time.Minute, PoolMaxConns: 5, PoolMinConns: 1}
	cm := NewConnectionManager(cfg, logger)
	defer cm.Close()

	ctx := context.Background()

	pool1, err := cm.GetOrCreatePool(ctx, "warehouse", "analytics", testDB.ConnStr)
	require.NoError(t, err)
	require.NotNil(t, pool1)

	pool2, err := cm.GetOrCreatePool(ctx, "warehouse", "analytics", testDB.ConnStr)
	require.NoError(t, err)
	require.NotNil(t, pool2)

	// Compare pointers as strings to avoid a race-detector false positive.
	assert.Equal(t, fmt.Sprintf("%p", pool1), fmt.Sprintf("%p", pool2), "should reuse same pool instance")

	cm.mu.RLock()
	count := len(cm.connections)
	cm.mu.RUnlock()
	assert.Equal(t, 1, count, "should have exactly 1 pooled connection")
}

func TestConnectionManager_GetOrCreatePool_DifferentNames(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	logger := zaptest.NewLogger(t)

	cfg := ConnectionManagerConfig{TTL: 5 * time.Minute, PoolMaxConns: 5, PoolMinConns: 1}
	cm := NewConnectionManager(cfg, logger)
	defer cm.Close()

	ctx := context.Background()

	pool1, err := cm.GetOrCreatePool(ctx, "warehouse", "analytics", testDB.ConnStr)
	require.NoError(t, err)
	require.NotNil(t, pool1)

	pool2, err := cm.GetOrCreatePool(ctx, "warehouse", "reporting", testDB.ConnStr)
	require.NoError(t, err)
	require.NotNil(t, pool2)

	assert.NotEqual(t, fmt.Sprintf("%p", pool1), fmt.Sprintf("%p", pool2), "different names should get different pools")

	cm.mu.RLock()
	count := len(cm.connections)
	cm.mu.RUnlock()
	assert.Equal(t, 2, count, "should have 2 pooled connections")
}

func TestConnectionManager_GetOrCreatePool_DifferentOwners(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	logger := zaptest.NewLogger(t)

	cfg := ConnectionManagerConfig{TTL: 5 * time.Minute, PoolMaxConns: 5, PoolMinConns: 1}
	cm := NewConnectionManager(cfg, logger)
	defer cm.Close()

	ctx := context.Background()

	pool1, err := cm.GetOrCreatePool(ctx, "user-1", "analytics", testDB.ConnStr)
	require.NoError(t, err)
	require.NotNil(t, pool1)

	pool2, err := cm.GetOrCreatePool(ctx, "user-2", "analytics", testDB.ConnStr)
	require.NoError(t, err)
	require.NotNil(t, pool2)

	assert.NotEqual(t, fmt.Sprintf("%p", pool1), fmt.Sprintf("%p", pool2), "different owners should get different pools")
}

func TestConnectionManager_GetOrCreatePool_HealthCheckRecovery(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	logger := zaptest.NewLogger(t)

	cfg := ConnectionManagerConfig{TTL: 5 * time.Minute, PoolMaxConns: 5, PoolMinConns: 1}
	cm := NewConnectionManager(cfg, logger)
	defer cm.Close()

	ctx := context.Background()

	pool1, err := cm.GetOrCreatePool(ctx, "warehouse", "analytics", testDB.ConnStr)
	require.NoError(t, err)
	require.NotNil(t, pool1)

	pool1.Close() // simulate an unhealthy pool

	pool2, err := cm.GetOrCreatePool(ctx, "warehouse", "analytics", testDB.ConnStr)
	require.NoError(t, err)
	require.NotNil(t, pool2)

	assert.NotEqual(t, fmt.Sprintf("%p", pool1), fmt.Sprintf("%p", pool2), "should create new pool after detecting unhealthy connection")
	assert.NoError(t, pool2.Ping(ctx), "new pool should be healthy")
}

func TestConnectionManager_TTLExpiration(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	logger := zaptest.NewLogger(t)

	cfg := ConnectionManagerConfig{TTL: 5 * time.Minute, PoolMaxConns: 5, PoolMinConns: 1}
	cm := NewConnectionManager(cfg, logger)
	cm.ttl = 2 * time.Second // override for a fast test
	defer cm.Close()

	ctx := context.Background()

	_, err := cm.GetOrCreatePool(ctx, "warehouse", "analytics", testDB.ConnStr)
	require.NoError(t, err)

	cm.mu.RLock()
	count := len(cm.connections)
	cm.mu.RUnlock()
	assert.Equal(t, 1, count)

	time.Sleep(3 * time.Second)
	cm.performCleanup()

	cm.mu.RLock()
	count = len(cm.connections)
	cm.mu.RUnlock()
	assert.Equal(t, 0, count, "expired connection should be cleaned up")
}

func TestConnectionManager_ConcurrentAccess(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	logger := zaptest.NewLogger(t)

	cfg := ConnectionManagerConfig{TTL: 5 * time.Minute, PoolMaxConns: 5, PoolMinConns: 1}
	cm := NewConnectionManager(cfg, logger)
	defer cm.Close()

	ctx := context.Background()

	const numGoroutines = 20
	var wg sync.WaitGroup
	errs := make([]error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			owner := fmt.Sprintf("owner-%d", idx%5) // 5 distinct owners
			_, err := cm.GetOrCreatePool(ctx, owner, "analytics", testDB.ConnStr)
			errs[idx] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d should not error", i)
	}

	cm.mu.RLock()
	count := len(cm.connections)
	cm.mu.RUnlock()
	assert.Equal(t, 5, count, "should create exactly 5 pools for 5 owners")
}

func TestConnectionManager_Invalidate(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	logger := zaptest.NewLogger(t)

	cfg := ConnectionManagerConfig{TTL: 5 * time.Minute, PoolMaxConns: 5, PoolMinConns: 1}
	cm := NewConnectionManager(cfg, logger)
	defer cm.Close()

	ctx := context.Background()

	pool1, err := cm.GetOrCreatePool(ctx, "warehouse", "analytics", testDB.ConnStr)
	require.NoError(t, err)

	cm.Invalidate("warehouse", "analytics")

	cm.mu.RLock()
	count := len(cm.connections)
	cm.mu.RUnlock()
	assert.Equal(t, 0, count, "invalidate should drop the pooled connection")

	pool2, err := cm.GetOrCreatePool(ctx, "warehouse", "analytics", testDB.ConnStr)
	require.NoError(t, err)
	assert.NotEqual(t, fmt.Sprintf("%p", pool1), fmt.Sprintf("%p", pool2), "should create a fresh pool after invalidation")
}

func TestConnectionManager_Close(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	logger := zaptest.NewLogger(t)

	cfg := ConnectionManagerConfig{TTL: 5 * time.Minute, PoolMaxConns: 5, PoolMinConns: 1}
	cm := NewConnectionManager(cfg, logger)

	ctx := context.Background()

	pool, err := cm.GetOrCreatePool(ctx, "warehouse", "analytics", testDB.ConnStr)
	require.NoError(t, err)
	require.NotNil(t, pool)

	require.NoError(t, cm.Close())

	cm.mu.RLock()
	count := len(cm.connections)
	cm.mu.RUnlock()
	assert.Equal(t, 0, count, "all connections should be closed")

	assert.Error(t, pool.Ping(ctx), "closed pool should fail ping")
	assert.NoError(t, cm.Close(), "second Close should not error")
}

func TestConnectionManager_InvalidConnectionString(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := ConnectionManagerConfig{TTL: 5 * time.Minute, PoolMaxConns: 5, PoolMinConns: 1}
	cm := NewConnectionManager(cfg, logger)
	defer cm.Close()

	ctx := context.Background()

	_, err := cm.GetOrCreatePool(ctx, "warehouse", "analytics", "invalid connection string")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestConnectionManager_DefaultConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cm := NewConnectionManager(ConnectionManagerConfig{}, logger)
	defer cm.Close()

	assert.Equal(t, DefaultConnectionTTL, cm.ttl)
	assert.Equal(t, int32(DefaultPoolMaxConns), cm.poolMaxConns)
	assert.Equal(t, int32(DefaultPoolMinConns), cm.poolMinConns)
}
