package registry

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

type stubHandler struct{}

func (stubHandler) Schema(ctx context.Context, schemaName, table string) (map[string]models.ColumnTypeInfo, error) {
	return nil, nil
}
func (stubHandler) Indexes(ctx context.Context, schemaName, table string) ([]models.IndexInfo, error) {
	return nil, nil
}
func (stubHandler) Constraints(ctx context.Context, schemaName, table string) (models.Constraints, error) {
	return models.Constraints{}, nil
}
func (stubHandler) RowCount(ctx context.Context, schemaName, table string, estimate bool) (*int64, error) {
	return nil, nil
}
func (stubHandler) ListSchemas(ctx context.Context) ([]string, error) { return nil, nil }
func (stubHandler) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	return nil, nil
}
func (stubHandler) Sample(ctx context.Context, schemaName, table string, size, count int, strategy models.SamplingMethod) (*models.TableSample, error) {
	return nil, nil
}
func (stubHandler) CheckCost(ctx context.Context, sql string) (bool, string, error) {
	return true, "", nil
}
func (stubHandler) PartitionInfo(ctx context.Context, schemaName, table string) (*models.PartitionInfo, error) {
	return nil, nil
}
func (stubHandler) Close() error { return nil }

type stubFactory struct{ calls int }

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
	f.calls++
	return stubHandler{}, nil
}
func (f *stubFactory) ListTypes() []datasource.DatasourceAdapterInfo { return nil }

type stubResolver struct{ secret string }

func (r *stubResolver) Resolve(ctx context.Context, spec models.ConnectionSpec) (string, error) {
	return r.secret, nil
}

func testSpec() models.ConnectionSpec {
	return models.ConnectionSpec{
		Name: "warehouse", Owner: "team-a", Engine: models.EnginePostgres,
		Credential: models.CredentialRef{Kind: models.CredentialInline, Value: "secret"},
	}
}

func TestRegistry_ResolveMemoizesHandler(t *testing.T) {
	factory := &stubFactory{}
	reg := New(factory, &stubResolver{secret: "s"}, []models.ConnectionSpec{testSpec()}, zap.NewNop())

	h1, err := reg.Resolve(context.Background(), "team-a", "warehouse")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h2, err := reg.Resolve(context.Background(), "team-a", "warehouse")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if h1 != h2 {
		t.Error("expected the same memoized handler on repeated resolve")
	}
	if factory.calls != 1 {
		t.Errorf("expected factory called once, got %d", factory.calls)
	}
}

func TestRegistry_InvalidateForcesReconnect(t *testing.T) {
	factory := &stubFactory{}
	reg := New(factory, &stubResolver{secret: "s"}, []models.ConnectionSpec{testSpec()}, zap.NewNop())

	reg.Resolve(context.Background(), "team-a", "warehouse")
	reg.Invalidate("team-a", "warehouse")
	reg.Resolve(context.Background(), "team-a", "warehouse")

	if factory.calls != 2 {
		t.Errorf("expected factory called twice after invalidate, got %d", factory.calls)
	}
}

func TestRegistry_ResolveUnknownConnection(t *testing.T) {
	reg := New(&stubFactory{}, &stubResolver{}, nil, zap.NewNop())

	if _, err := reg.Resolve(context.Background(), "team-a", "ghost"); !apperrors.Is(err, apperrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRegistry_UserTierShadowsFileTier(t *testing.T) {
	fileSpec := testSpec()
	reg := New(&stubFactory{}, &stubResolver{}, []models.ConnectionSpec{fileSpec}, zap.NewNop())

	userSpec := testSpec()
	userSpec.Endpoint = "overridden:5432"
	reg.Add(userSpec)

	got, ok := reg.Get("team-a", "warehouse")
	if !ok {
		t.Fatal("expected connection to resolve")
	}
	if got.Tier != models.TierUser || got.Endpoint != "overridden:5432" {
		t.Errorf("expected user-tier spec to shadow file tier, got %+v", got)
	}
}

func TestRegistry_DeleteUnknownReturnsNotFound(t *testing.T) {
	reg := New(&stubFactory{}, &stubResolver{}, nil, zap.NewNop())
	if err := reg.Delete("team-a", "ghost"); !apperrors.Is(err, apperrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDefaultCredentialResolver(t *testing.T) {
	env := func(key string) (string, bool) {
		if key == "WAREHOUSE_PASSWORD" {
			return "env-secret", true
		}
		return "", false
	}
	resolver := NewCredentialResolver(env, nil)

	inline := testSpec()
	got, err := resolver.Resolve(context.Background(), inline)
	if err != nil || got != "secret" {
		t.Errorf("inline: got (%q, %v)", got, err)
	}

	envSpec := testSpec()
	envSpec.Credential = models.CredentialRef{Kind: models.CredentialEnvRef, EnvVar: "WAREHOUSE_PASSWORD"}
	got, err = resolver.Resolve(context.Background(), envSpec)
	if err != nil || got != "env-secret" {
		t.Errorf("env: got (%q, %v)", got, err)
	}

	missingEnvSpec := testSpec()
	missingEnvSpec.Credential = models.CredentialRef{Kind: models.CredentialEnvRef, EnvVar: "NOPE"}
	if _, err := resolver.Resolve(context.Background(), missingEnvSpec); !apperrors.Is(err, apperrors.AuthMissing) {
		t.Errorf("expected AuthMissing for unset env var, got %v", err)
	}

	sessionSpec := testSpec()
	sessionSpec.Credential = models.CredentialRef{Kind: models.CredentialSession}
	if _, err := resolver.Resolve(context.Background(), sessionSpec); !apperrors.Is(err, apperrors.AuthMissing) {
		t.Errorf("expected AuthMissing when no session cache is configured, got %v", err)
	}
}

func TestEvaluateSchemaFilter(t *testing.T) {
	raw := []string{"accounts", "orders", "archived_orders", "tmp_scratch", "internal_audit"}

	disabled := EvaluateSchemaFilter(raw, models.SchemaFilter{Enabled: false})
	if disabled != nil {
		t.Errorf("expected nil for disabled filter, got %v", disabled)
	}

	allowList := EvaluateSchemaFilter(raw, models.SchemaFilter{
		Enabled: true,
		Tables:  []string{"accounts", "orders", "archived_orders"},
	})
	if len(allowList) != 3 {
		t.Errorf("expected 3 tables from allow-list, got %v", allowList)
	}

	excluded := EvaluateSchemaFilter(raw, models.SchemaFilter{
		Enabled:        true,
		ExcludedTables: []string{"tmp_scratch"},
	})
	for _, tbl := range excluded {
		if tbl == "tmp_scratch" {
			t.Error("expected tmp_scratch to be excluded")
		}
	}

	patterned := EvaluateSchemaFilter(raw, models.SchemaFilter{
		Enabled:         true,
		IncludePatterns: []string{"*order*"},
		ExcludePatterns: []string{"archived_*"},
	})
	want := map[string]bool{"orders": true}
	if len(patterned) != len(want) {
		t.Fatalf("expected %v, got %v", want, patterned)
	}
	for _, tbl := range patterned {
		if !want[tbl] {
			t.Errorf("unexpected table %s in result", tbl)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	if err := ValidateIdentifier("accounts"); err != nil {
		t.Errorf("expected accounts to be valid, got %v", err)
	}
	if err := ValidateIdentifier("accounts; DROP TABLE x"); !apperrors.Is(err, apperrors.InvalidIdentifier) {
		t.Errorf("expected InvalidIdentifier, got %v", err)
	}
	if err := ValidateIdentifier("1_leading_digit"); !apperrors.Is(err, apperrors.InvalidIdentifier) {
		t.Errorf("expected InvalidIdentifier for leading digit, got %v", err)
	}
}

func TestValidateRequestIdentifiers(t *testing.T) {
	if err := ValidateRequestIdentifiers("db", "public", "accounts"); err != nil {
		t.Errorf("expected clean identifiers to pass, got %v", err)
	}
	if err := ValidateRequestIdentifiers("db", "public", "accounts; DROP TABLE x"); !apperrors.Is(err, apperrors.InvalidIdentifier) {
		t.Errorf("expected InvalidIdentifier for malformed table, got %v", err)
	}
}
