package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

type stubRunner struct {
	doc *models.MetadataDocument
	err error
}

func (r *stubRunner) Run(ctx context.Context, conn models.ConnectionSpec, connConfig map[string]any, req models.GenerationRequest) (*models.MetadataDocument, error) {
	return r.doc, r.err
}

type stubStore struct {
	saved   *models.MetadataDocument
	saveErr error
}

func (s *stubStore) Save(ctx context.Context, doc *models.MetadataDocument) error {
	s.saved = doc
	return s.saveErr
}

func testReq() models.GenerationRequest {
	return models.DefaultGenerationRequest("db", "public", "accounts")
}

func TestManager_SubmitCompletesJob(t *testing.T) {
	doc := &models.MetadataDocument{Database: "db", Schema: "public", Table: "accounts"}
	mgr := NewManager(&stubRunner{doc: doc}, zap.NewNop())

	job := mgr.Submit(models.JobKindMetadata, models.ConnectionSpec{}, nil, testReq())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := mgr.Get(job.ID)
	if !ok {
		t.Fatal("job not found after submit")
	}
	if got.Status != models.JobCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.Result != doc {
		t.Errorf("expected result to be the document returned by the runner")
	}
}

func TestManager_SubmitFailsJobOnRunnerError(t *testing.T) {
	mgr := NewManager(&stubRunner{err: errors.New("acquire failed")}, zap.NewNop())

	job := mgr.Submit(models.JobKindMetadata, models.ConnectionSpec{}, nil, testReq())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgr.Wait(ctx) // queue surfaces the first failure; ignore it here

	got, ok := mgr.Get(job.ID)
	if !ok {
		t.Fatal("job not found after submit")
	}
	if got.Status != models.JobFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.Error == "" {
		t.Error("expected error message to be recorded")
	}
}

func TestManager_SubmitPersistsToStore(t *testing.T) {
	doc := &models.MetadataDocument{Database: "db", Schema: "public", Table: "accounts"}
	store := &stubStore{}
	mgr := NewManager(&stubRunner{doc: doc}, zap.NewNop(), WithDocumentStore(store))

	mgr.Submit(models.JobKindMetadata, models.ConnectionSpec{}, nil, testReq())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgr.Wait(ctx)

	if store.saved != doc {
		t.Error("expected the document to be saved through the configured store")
	}
}

func TestManager_SubmitFailsJobWhenStoreSaveFails(t *testing.T) {
	doc := &models.MetadataDocument{Database: "db", Schema: "public", Table: "accounts"}
	store := &stubStore{saveErr: errors.New("disk full")}
	mgr := NewManager(&stubRunner{doc: doc}, zap.NewNop(), WithDocumentStore(store))

	job := mgr.Submit(models.JobKindMetadata, models.ConnectionSpec{}, nil, testReq())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgr.Wait(ctx)

	got, _ := mgr.Get(job.ID)
	if got.Status != models.JobFailed {
		t.Errorf("expected failed when the store rejects the save, got %s", got.Status)
	}
}

func TestManager_GetUnknownJob(t *testing.T) {
	mgr := NewManager(&stubRunner{}, zap.NewNop())
	if _, ok := mgr.Get("does-not-exist"); ok {
		t.Error("expected ok=false for an unknown job ID")
	}
}

func TestManager_List(t *testing.T) {
	mgr := NewManager(&stubRunner{doc: &models.MetadataDocument{}}, zap.NewNop())

	mgr.Submit(models.JobKindMetadata, models.ConnectionSpec{}, nil, testReq())
	mgr.Submit(models.JobKindMetadata, models.ConnectionSpec{}, nil, testReq())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgr.Wait(ctx)

	if got := len(mgr.List()); got != 2 {
		t.Errorf("expected 2 jobs tracked, got %d", got)
	}
}

func TestManager_CleanupRemovesOldTerminalJobs(t *testing.T) {
	mgr := NewManager(&stubRunner{doc: &models.MetadataDocument{}}, zap.NewNop(), WithCleanupHorizon(0))

	job := mgr.Submit(models.JobKindMetadata, models.ConnectionSpec{}, nil, testReq())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgr.Wait(ctx)

	removed := mgr.Cleanup()
	if removed != 1 {
		t.Errorf("expected 1 job removed, got %d", removed)
	}
	if _, ok := mgr.Get(job.ID); ok {
		t.Error("expected job to be gone after cleanup")
	}
}
