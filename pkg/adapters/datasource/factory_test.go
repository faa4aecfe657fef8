package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// mockConnectionTester for testing factory
type mockConnectionTester struct {
	owner   string
	name    string
	connMgr *ConnectionManager
}

func (m *mockConnectionTester) TestConnection(ctx context.Context) error {
	return nil
}

func (m *mockConnectionTester) Close() error {
	return nil
}

// mockSchemaDiscoverer for testing factory
type mockSchemaDiscoverer struct {
	owner   string
	name    string
	connMgr *ConnectionManager
}

func (m *mockSchemaDiscoverer) DiscoverTables(ctx context.Context) ([]TableMetadata, error) {
	return []TableMetadata{}, nil
}

func (m *mockSchemaDiscoverer) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error) {
	return []ColumnMetadata{}, nil
}

func (m *mockSchemaDiscoverer) DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyMetadata, error) {
	return []ForeignKeyMetadata{}, nil
}

func (m *mockSchemaDiscoverer) SupportsForeignKeys() bool {
	return true
}

func (m *mockSchemaDiscoverer) AnalyzeColumnStats(ctx context.Context, schemaName, tableName string, columnNames []string) ([]ColumnStats, error) {
	return []ColumnStats{}, nil
}

func (m *mockSchemaDiscoverer) CheckValueOverlap(ctx context.Context, sourceSchema, sourceTable, sourceColumn, targetSchema, targetTable, targetColumn string, sampleLimit int) (*ValueOverlapResult, error) {
	return &ValueOverlapResult{}, nil
}

func (m *mockSchemaDiscoverer) Close() error {
	return nil
}

// mockQueryExecutor for testing factory
type mockQueryExecutor struct {
	owner   string
	name    string
	connMgr *ConnectionManager
}

func (m *mockQueryExecutor) ExecuteQuery(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error) {
	return &QueryExecutionResult{}, nil
}

func (m *mockQueryExecutor) ExecuteQueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*QueryExecutionResult, error) {
	return &QueryExecutionResult{}, nil
}

func (m *mockQueryExecutor) Execute(ctx context.Context, sqlStatement string) (*ExecuteResult, error) {
	return &ExecuteResult{}, nil
}

func (m *mockQueryExecutor) ValidateQuery(ctx context.Context, sqlQuery string) error {
	return nil
}

func (m *mockQueryExecutor) ExplainQuery(ctx context.Context, sqlQuery string) (*ExplainResult, error) {
	return &ExplainResult{}, nil
}

func (m *mockQueryExecutor) QuoteIdentifier(name string) string {
	return name
}

func (m *mockQueryExecutor) Close() error {
	return nil
}

// mockHandler for testing factory
type mockHandler struct {
	owner   string
	name    string
	connMgr *ConnectionManager
}

func (m *mockHandler) Schema(ctx context.Context, schemaName, table string) (map[string]models.ColumnTypeInfo, error) {
	return map[string]models.ColumnTypeInfo{}, nil
}
func (m *mockHandler) Indexes(ctx context.Context, schemaName, table string) ([]models.IndexInfo, error) {
	return nil, nil
}
func (m *mockHandler) Constraints(ctx context.Context, schemaName, table string) (models.Constraints, error) {
	return models.Constraints{}, nil
}
func (m *mockHandler) RowCount(ctx context.Context, schemaName, table string, estimate bool) (*int64, error) {
	return nil, nil
}
func (m *mockHandler) ListSchemas(ctx context.Context) ([]string, error) { return nil, nil }
func (m *mockHandler) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	return nil, nil
}
func (m *mockHandler) Sample(ctx context.Context, schemaName, table string, size, count int, strategy models.SamplingMethod) (*models.TableSample, error) {
	return &models.TableSample{}, nil
}
func (m *mockHandler) CheckCost(ctx context.Context, sql string) (bool, string, error) {
	return true, "unchecked", nil
}
func (m *mockHandler) PartitionInfo(ctx context.Context, schemaName, table string) (*models.PartitionInfo, error) {
	return nil, nil
}
func (m *mockHandler) Close() error { return nil }

func testConnManagerConfig() ConnectionManagerConfig {
	return ConnectionManagerConfig{TTL: time.Minute, PoolMaxConns: 5, PoolMinConns: 1}
}

func TestFactoryPassesConnectionManager(t *testing.T) {
	logger := zaptest.NewLogger(t)
	connMgr := NewConnectionManager(testConnManagerConfig(), logger)
	defer connMgr.Close()

	factory := NewDatasourceAdapterFactory(connMgr)

	require.NotNil(t, factory)

	regFactory, ok := factory.(*registryFactory)
	require.True(t, ok, "factory should be of type *registryFactory")

	assert.Equal(t, connMgr, regFactory.connMgr, "connection manager should be set in factory")
}

func TestFactoryPassesIdentityParameters(t *testing.T) {
	logger := zaptest.NewLogger(t)
	connMgr := NewConnectionManager(testConnManagerConfig(), logger)
	defer connMgr.Close()

	owner := "warehouse"
	name := "analytics"

	var capturedOwner, capturedName string
	var capturedConnMgr *ConnectionManager

	mockType := "test-mock-adapter"
	Register(DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{
			Type:        mockType,
			DisplayName: "Test Mock",
			Description: "Test adapter",
		},
		Factory: func(ctx context.Context, config map[string]any, cm *ConnectionManager, o, n string) (ConnectionTester, error) {
			capturedOwner, capturedName, capturedConnMgr = o, n, cm
			return &mockConnectionTester{owner: o, name: n, connMgr: cm}, nil
		},
		SchemaDiscovererFactory: func(ctx context.Context, config map[string]any, cm *ConnectionManager, o, n string) (SchemaDiscoverer, error) {
			capturedOwner, capturedName, capturedConnMgr = o, n, cm
			return &mockSchemaDiscoverer{owner: o, name: n, connMgr: cm}, nil
		},
		QueryExecutorFactory: func(ctx context.Context, config map[string]any, cm *ConnectionManager, o, n string) (QueryExecutor, error) {
			capturedOwner, capturedName, capturedConnMgr = o, n, cm
			return &mockQueryExecutor{owner: o, name: n, connMgr: cm}, nil
		},
		HandlerFactory: func(ctx context.Context, config map[string]any, cm *ConnectionManager, o, n string) (Handler, error) {
			capturedOwner, capturedName, capturedConnMgr = o, n, cm
			return &mockHandler{owner: o, name: n, connMgr: cm}, nil
		},
	})

	factory := NewDatasourceAdapterFactory(connMgr)
	ctx := context.Background()
	config := map[string]any{}

	t.Run("NewConnectionTester passes parameters", func(t *testing.T) {
		tester, err := factory.NewConnectionTester(ctx, mockType, config, owner, name)
		require.NoError(t, err)
		require.NotNil(t, tester)
		defer tester.Close()

		assert.Equal(t, owner, capturedOwner)
		assert.Equal(t, name, capturedName)
		assert.Equal(t, connMgr, capturedConnMgr)
	})

	t.Run("NewSchemaDiscoverer passes parameters", func(t *testing.T) {
		discoverer, err := factory.NewSchemaDiscoverer(ctx, mockType, config, owner, name)
		require.NoError(t, err)
		require.NotNil(t, discoverer)
		defer discoverer.Close()

		assert.Equal(t, owner, capturedOwner)
		assert.Equal(t, name, capturedName)
		assert.Equal(t, connMgr, capturedConnMgr)
	})

	t.Run("NewQueryExecutor passes parameters", func(t *testing.T) {
		executor, err := factory.NewQueryExecutor(ctx, mockType, config, owner, name)
		require.NoError(t, err)
		require.NotNil(t, executor)
		defer executor.Close()

		assert.Equal(t, owner, capturedOwner)
		assert.Equal(t, name, capturedName)
		assert.Equal(t, connMgr, capturedConnMgr)
	})

	t.Run("NewHandler passes parameters", func(t *testing.T) {
		handler, err := factory.NewHandler(ctx, mockType, config, owner, name)
		require.NoError(t, err)
		require.NotNil(t, handler)
		defer handler.Close()

		assert.Equal(t, owner, capturedOwner)
		assert.Equal(t, name, capturedName)
		assert.Equal(t, connMgr, capturedConnMgr)
	})
}

func TestFactoryErrorHandling(t *testing.T) {
	logger := zaptest.NewLogger(t)
	connMgr := NewConnectionManager(testConnManagerConfig(), logger)
	defer connMgr.Close()

	factory := NewDatasourceAdapterFactory(connMgr)
	ctx := context.Background()
	config := map[string]any{}

	t.Run("NewConnectionTester returns error for unsupported type", func(t *testing.T) {
		tester, err := factory.NewConnectionTester(ctx, "unsupported-type", config, "warehouse", "analytics")
		assert.Error(t, err)
		assert.Nil(t, tester)
		assert.Contains(t, err.Error(), "unsupported datasource type")
	})

	t.Run("NewSchemaDiscoverer returns error for unsupported type", func(t *testing.T) {
		discoverer, err := factory.NewSchemaDiscoverer(ctx, "unsupported-type", config, "warehouse", "analytics")
		assert.Error(t, err)
		assert.Nil(t, discoverer)
		assert.Contains(t, err.Error(), "not supported")
	})

	t.Run("NewQueryExecutor returns error for unsupported type", func(t *testing.T) {
		executor, err := factory.NewQueryExecutor(ctx, "unsupported-type", config, "warehouse", "analytics")
		assert.Error(t, err)
		assert.Nil(t, executor)
		assert.Contains(t, err.Error(), "not supported")
	})

	t.Run("NewHandler returns error for unsupported type", func(t *testing.T) {
		handler, err := factory.NewHandler(ctx, "unsupported-type", config, "warehouse", "analytics")
		assert.Error(t, err)
		assert.Nil(t, handler)
		assert.Contains(t, err.Error(), "not supported")
	})
}

func TestFactoryListTypes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	connMgr := NewConnectionManager(testConnManagerConfig(), logger)
	defer connMgr.Close()

	factory := NewDatasourceAdapterFactory(connMgr)

	types := factory.ListTypes()
	assert.NotNil(t, types)
}

func TestFactoryNilConnectionManager(t *testing.T) {
	factory := NewDatasourceAdapterFactory(nil)
	require.NotNil(t, factory)

	regFactory, ok := factory.(*registryFactory)
	require.True(t, ok)
	assert.Nil(t, regFactory.connMgr, "connection manager can be nil for testing scenarios")
}
