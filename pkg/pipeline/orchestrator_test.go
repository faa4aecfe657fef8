package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

type stubHandler struct {
	schema        map[string]models.ColumnTypeInfo
	schemaErr     error
	indexes       []models.IndexInfo
	constraints   models.Constraints
	rowCount      *int64
	partitionInfo *models.PartitionInfo
	sample        *models.TableSample
	closed        bool
}

func (s *stubHandler) Schema(ctx context.Context, schemaName, table string) (map[string]models.ColumnTypeInfo, error) {
	return s.schema, s.schemaErr
}
func (s *stubHandler) Indexes(ctx context.Context, schemaName, table string) ([]models.IndexInfo, error) {
	return s.indexes, nil
}
func (s *stubHandler) Constraints(ctx context.Context, schemaName, table string) (models.Constraints, error) {
	return s.constraints, nil
}
func (s *stubHandler) RowCount(ctx context.Context, schemaName, table string, estimate bool) (*int64, error) {
	return s.rowCount, nil
}
func (s *stubHandler) ListSchemas(ctx context.Context) ([]string, error) { return nil, nil }
func (s *stubHandler) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	return nil, nil
}
func (s *stubHandler) Sample(ctx context.Context, schemaName, table string, size, count int, strategy models.SamplingMethod) (*models.TableSample, error) {
	return s.sample, nil
}
func (s *stubHandler) CheckCost(ctx context.Context, sql string) (bool, string, error) {
	return true, "unchecked", nil
}
func (s *stubHandler) PartitionInfo(ctx context.Context, schemaName, table string) (*models.PartitionInfo, error) {
	return s.partitionInfo, nil
}
func (s *stubHandler) QuoteIdentifier(identifier string) string { return `"` + identifier + `"` }
func (s *stubHandler) Close() error                             { s.closed = true; return nil }

type stubFactory struct {
	handler datasource.Handler
	err     error
}

func (f *stubFactory) NewConnectionTester(ctx context.Context, dsType string, config map[string]any, owner, name string) (datasource.ConnectionTester, error) {
	return nil, nil
}
func (f *stubFactory) NewSchemaDiscoverer(ctx context.Context, dsType string, config map[string]any, owner, name string) (datasource.SchemaDiscoverer, error) {
	return nil, nil
}
func (f *stubFactory) NewQueryExecutor(ctx context.Context, dsType string, config map[string]any, owner, name string) (datasource.QueryExecutor, error) {
	return nil, nil
}
func (f *stubFactory) NewHandler(ctx context.Context, dsType string, config map[string]any, owner, name string) (datasource.Handler, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.handler, nil
}
func (f *stubFactory) ListTypes() []datasource.DatasourceAdapterInfo { return nil }

type stubGateway struct {
	jsonResp map[string]any
	jsonErr  error
	model    string
}

func (g *stubGateway) CallText(ctx context.Context, prompt, system string) (string, error) {
	return "", nil
}
func (g *stubGateway) CallJSON(ctx context.Context, prompt, schemaHint string) (map[string]any, error) {
	return g.jsonResp, g.jsonErr
}
func (g *stubGateway) Model() string { return g.model }

func testConnSpec() models.ConnectionSpec {
	return models.ConnectionSpec{Name: "analytics", Owner: "team", Engine: models.EnginePostgres}
}

func testSchema() map[string]models.ColumnTypeInfo {
	return map[string]models.ColumnTypeInfo{
		"id":       {DeclaredType: "bigint", Nullable: false},
		"status":   {DeclaredType: "varchar", Nullable: false},
		"nickname": {DeclaredType: "varchar", Nullable: true},
	}
}

func testSample() *models.TableSample {
	rows := make([]map[string]any, 0, 60)
	for i := 0; i < 60; i++ {
		status := "active"
		if i%2 == 0 {
			status = "inactive"
		}
		rows = append(rows, map[string]any{"id": int64(i + 1), "status": status, "nickname": "n"})
	}
	return &models.TableSample{Rows: rows, ColumnOrder: []string{"id", "status", "nickname"}, SamplingMethod: models.SamplingFull}
}

func TestRun_FullSuccessWithGateway(t *testing.T) {
	handler := &stubHandler{schema: testSchema(), sample: testSample(), constraints: models.Constraints{PrimaryKey: []string{"id"}}}
	factory := &stubFactory{handler: handler}
	gateway := &stubGateway{model: "gpt-4o-mini", jsonResp: map[string]any{
		"definition": "A nickname the user chose.", "business_name": "Nickname",
		"domain": "Accounts", "category": "User Data", "description": "desc", "purpose": "purpose",
	}}

	orch := New(factory, gateway, nil)
	req := models.DefaultGenerationRequest("db", "public", "accounts")

	doc, err := orch.Run(context.Background(), testConnSpec(), nil, req)
	require.NoError(t, err)
	assert.Equal(t, "accounts", doc.Table)
	assert.Contains(t, doc.Definitions, "nickname")
	assert.Contains(t, doc.Definitions, "id")
	assert.Equal(t, models.SourcePatternBased, doc.Definitions["id"].Source)
	assert.NotEmpty(t, doc.CategoricalGlossary)
	assert.Equal(t, "Accounts", doc.TableInsights.Domain)
	assert.True(t, handler.closed)
	assert.Len(t, doc.ProcessingStats.Steps, 5)
}

func TestRun_NoGatewayDegradesToPatternAndFallback(t *testing.T) {
	handler := &stubHandler{schema: testSchema(), sample: testSample()}
	factory := &stubFactory{handler: handler}

	orch := New(factory, nil, nil)
	req := models.DefaultGenerationRequest("db", "public", "accounts")

	doc, err := orch.Run(context.Background(), testConnSpec(), nil, req)
	require.NoError(t, err)
	assert.Equal(t, models.SourcePatternBased, doc.Definitions["id"].Source)
	assert.Equal(t, models.SourceFallback, doc.Definitions["nickname"].Source)
	assert.Equal(t, fallbackDomain, doc.TableInsights.Domain)
	assert.Equal(t, fallbackCategory, doc.TableInsights.Category)
}

func TestRun_AcquireFailureAbortsPipeline(t *testing.T) {
	factory := &stubFactory{err: apperrors.New(apperrors.ConnectionFailed, "dial failed")}
	orch := New(factory, nil, nil)
	req := models.DefaultGenerationRequest("db", "public", "accounts")

	doc, err := orch.Run(context.Background(), testConnSpec(), nil, req)
	require.Error(t, err)
	assert.Nil(t, doc)
	assert.True(t, apperrors.Is(err, apperrors.StageFailed))
}

func TestRun_EmptySchemaAbortsPipeline(t *testing.T) {
	handler := &stubHandler{schema: map[string]models.ColumnTypeInfo{}}
	factory := &stubFactory{handler: handler}
	orch := New(factory, nil, nil)
	req := models.DefaultGenerationRequest("db", "public", "missing_table")

	doc, err := orch.Run(context.Background(), testConnSpec(), nil, req)
	require.Error(t, err)
	assert.Nil(t, doc)
	assert.True(t, handler.closed)
}

func TestRun_LLMUnavailableDegradesDefinitionsAndInsights(t *testing.T) {
	handler := &stubHandler{schema: testSchema(), sample: testSample()}
	factory := &stubFactory{handler: handler}
	gateway := &stubGateway{model: "gpt-4o-mini", jsonErr: apperrors.Wrap(apperrors.LLMUnavailable, "retries exhausted", nil)}

	orch := New(factory, gateway, nil)
	req := models.DefaultGenerationRequest("db", "public", "accounts")

	doc, err := orch.Run(context.Background(), testConnSpec(), nil, req)
	require.NoError(t, err)
	assert.Equal(t, models.SourceFallback, doc.Definitions["nickname"].Source)
	assert.Equal(t, fallbackDomain, doc.TableInsights.Domain)
	for _, v := range doc.CategoricalGlossary["status"] {
		assert.NotEmpty(t, v)
	}
}

func TestRun_DataQualityDisabledStripsQualityMetrics(t *testing.T) {
	handler := &stubHandler{schema: testSchema(), sample: testSample()}
	factory := &stubFactory{handler: handler}

	orch := New(factory, nil, nil)
	req := models.DefaultGenerationRequest("db", "public", "accounts")
	req.Options.DataQuality = false

	doc, err := orch.Run(context.Background(), testConnSpec(), nil, req)
	require.NoError(t, err)
	for _, col := range doc.Columns {
		assert.Equal(t, models.QualityMetrics{}, col.Quality)
	}
}

func TestRun_CategoricalDefinitionsDisabledSkipsGlossary(t *testing.T) {
	handler := &stubHandler{schema: testSchema(), sample: testSample()}
	factory := &stubFactory{handler: handler}

	orch := New(factory, nil, nil)
	req := models.DefaultGenerationRequest("db", "public", "accounts")
	req.Options.CategoricalDefinitions = false

	doc, err := orch.Run(context.Background(), testConnSpec(), nil, req)
	require.NoError(t, err)
	assert.Empty(t, doc.CategoricalGlossary)
	assert.Len(t, doc.ProcessingStats.Steps, 4)
}
