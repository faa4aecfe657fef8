package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/metadata-pipeline/metadatapipeline/pkg/logging"
	"github.com/metadata-pipeline/metadatapipeline/pkg/retry"
)

const (
	// DefaultPoolMaxConns is the spec's default bound on concurrent logical
	// connections per (owner, name).
	DefaultPoolMaxConns     = 5
	DefaultPoolMinConns     = 1
	DefaultConnectionTTL    = 5 * time.Minute
	DefaultCleanupInterval  = 1 * time.Minute
)

// ConnectionManagerConfig holds configuration for the connection manager.
type ConnectionManagerConfig struct {
	TTL          time.Duration
	PoolMaxConns int32
	PoolMinConns int32
}

// ConnectionManager pools engine connections keyed by (owner, name),
// memoizing a resolved handler's pool until the registry invalidates it.
// Reused concurrent resolutions of the same key never duplicate construction.
type ConnectionManager struct {
	mu           sync.RWMutex
	connections  map[string]*ManagedConnection
	ttl          time.Duration
	poolMaxConns int32
	poolMinConns int32
	stopped      bool
	stopChan     chan struct{}
	logger       *zap.Logger
}

// ManagedConnection is a pooled connection plus its last-used timestamp for
// TTL-based eviction.
type ManagedConnection struct {
	pool     *pgxpool.Pool
	lastUsed time.Time
	mu       sync.Mutex
}

// NewConnectionManager creates a connection manager and starts its
// background TTL eviction loop, which runs until Close is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConnectionTTL
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}

	m := &ConnectionManager{
		connections:  make(map[string]*ManagedConnection),
		ttl:          cfg.TTL,
		poolMaxConns: cfg.PoolMaxConns,
		poolMinConns: cfg.PoolMinConns,
		stopChan:     make(chan struct{}),
		logger:       logger,
	}

	go m.cleanupExpiredConnections()
	return m
}

func connectionKey(owner, name string) string {
	return owner + ":" + name
}

// GetOrCreatePool returns the pooled connection for (owner, name), creating
// and health-checking it as needed. Concurrent resolutions of the same key
// never race into duplicate pool construction.
func (m *ConnectionManager) GetOrCreatePool(ctx context.Context, owner, name, connString string) (*pgxpool.Pool, error) {
	key := connectionKey(owner, name)

	m.mu.RLock()
	managed, exists := m.connections[key]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.pool.Ping(healthCtx)
		})
		cancel()

		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("key", key),
				zap.String("error", logging.SanitizeError(err)))
			managed.mu.Unlock()
			m.removeConnection(key)
			return m.createNewPool(ctx, key, connString)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.pool, nil
	}

	return m.createNewPool(ctx, key, connString)
}

func (m *ConnectionManager) createNewPool(ctx context.Context, key, connString string) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.pool, nil
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		m.logger.Error("failed to parse connection string",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = m.poolMaxConns
	poolConfig.MinConns = m.poolMinConns
	poolConfig.MaxConnIdleTime = m.ttl

	pool, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*pgxpool.Pool, error) {
		return pgxpool.NewWithConfig(ctx, poolConfig)
	})
	if err != nil {
		m.logger.Error("failed to create pool after retries",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to create pool for %s after retries: %w", key, err)
	}

	m.connections[key] = &ManagedConnection{pool: pool, lastUsed: time.Now()}
	m.logger.Info("created new connection pool", zap.String("key", key))
	return pool, nil
}

// Invalidate drops the pooled connection for (owner, name), forcing the
// next resolution to reconnect. Called after a mutation to that connection.
func (m *ConnectionManager) Invalidate(owner, name string) {
	m.removeConnection(connectionKey(owner, name))
}

func (m *ConnectionManager) removeConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed != nil {
		if managed.pool != nil {
			managed.pool.Close()
		}
		delete(m.connections, key)
		m.logger.Debug("removed connection", zap.String("key", key))
	}
}

func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := time.Now()
	var expired []string

	for key, managed := range m.connections {
		managed.mu.Lock()
		isExpired := now.Sub(managed.lastUsed) > m.ttl
		managed.mu.Unlock()
		if isExpired {
			expired = append(expired, key)
		}
	}

	for _, key := range expired {
		if managed, exists := m.connections[key]; exists && managed != nil {
			if managed.pool != nil {
				managed.pool.Close()
			}
			delete(m.connections, key)
		}
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expired)),
			zap.Int("remaining", len(m.connections)))
	}
}

// Close disposes every pooled connection and stops the cleanup loop. This
// is the explicit pool-wide disposal the job manager invokes on shutdown;
// BigQuery clients, which are long-lived, are not routed through this pool.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		if managed != nil && managed.pool != nil {
			managed.pool.Close()
		}
	}
	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}
