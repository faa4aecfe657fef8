// Package jobs tracks asynchronous metadata generation runs. A Manager
// wraps the generic Queue with models.Job bookkeeping: submitting a
// request creates a pending Job and enqueues a task that drives it
// through running to completed or failed.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// Runner is the subset of Orchestrator the manager depends on, letting
// tests substitute a stub without constructing a real pipeline.
type Runner interface {
	Run(ctx context.Context, conn models.ConnectionSpec, connConfig map[string]any, req models.GenerationRequest) (*models.MetadataDocument, error)
}

// ProgressReportingRunner is the optional extension a Runner implements
// to report progress at stage boundaries (0.1 after acquire, 0.4 after
// profile, 0.7 after the LLM stages, 1.0 on completion) rather than
// only the start/terminal states Execute reports on its own.
// pipeline.Orchestrator implements this via RunWithProgress.
type ProgressReportingRunner interface {
	RunWithProgress(ctx context.Context, conn models.ConnectionSpec, connConfig map[string]any, req models.GenerationRequest, progress func(float64)) (*models.MetadataDocument, error)
}

// DocumentStore persists a completed generation. A nil store is valid:
// the Job still carries its Result in memory, it just isn't written to
// durable storage.
type DocumentStore interface {
	Save(ctx context.Context, doc *models.MetadataDocument) error
}

// Manager tracks every Job it has submitted, keyed by ID, and drives
// each one through the queue to completion.
type Manager struct {
	queue  *Queue
	runner Runner
	store  DocumentStore
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]*models.Job

	cleanupHorizon time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDocumentStore configures where completed documents are persisted.
func WithDocumentStore(store DocumentStore) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithQueueOptions forwards options to the underlying Queue, e.g.
// WithStrategy(NewThrottledLLMStrategy(n)) to allow n concurrent runs.
func WithQueueOptions(opts ...QueueOption) ManagerOption {
	return func(m *Manager) { m.queue = New(m.logger, opts...) }
}

// WithCleanupHorizon sets how long a terminal job is retained before
// Cleanup removes it. Defaults to 24h, matching config.Config's
// JobCleanupHorizon default.
func WithCleanupHorizon(d time.Duration) ManagerOption {
	return func(m *Manager) { m.cleanupHorizon = d }
}

// NewManager builds a Manager backed by runner, with a default
// single-at-a-time queue strategy (safest under an unconfigured LLM
// concurrency budget).
func NewManager(runner Runner, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		runner:         runner,
		logger:         logger.Named("jobs.manager"),
		jobs:           make(map[string]*models.Job),
		cleanupHorizon: 24 * time.Hour,
	}
	m.queue = New(m.logger)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit creates a pending Job for (conn, req) and enqueues its run.
// It returns immediately; the job progresses asynchronously and can be
// observed via Get.
func (m *Manager) Submit(kind models.JobKind, conn models.ConnectionSpec, connConfig map[string]any, req models.GenerationRequest) *models.Job {
	job := models.NewJob(uuid.New().String(), kind)

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.queue.Enqueue(&generationTask{
		BaseTask: NewBaseTask(fmt.Sprintf("%s:%s.%s", kind, req.Schema, req.Table), true),
		job:      job,
		runner:   m.runner,
		store:    m.store,
		conn:     conn,
		connCfg:  connConfig,
		req:      req,
		logger:   m.logger,
	})

	return job
}

// Get returns a snapshot of the job with the given ID, or false if no
// such job was ever submitted to this manager.
func (m *Manager) Get(id string) (models.Job, bool) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return models.Job{}, false
	}
	return job.Snapshot(), true
}

// List returns a snapshot of every job the manager has tracked.
func (m *Manager) List() []models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.Snapshot())
	}
	return out
}

// Shutdown cancels every running job run and stops accepting new
// submissions. Per-job cancellation is not supported: the underlying
// Queue only exposes a whole-queue Cancel, matching its original design
// for a single shared work surface.
func (m *Manager) Shutdown() {
	m.queue.Cancel()
}

// Wait blocks until every currently enqueued job run completes, or ctx
// is cancelled.
func (m *Manager) Wait(ctx context.Context) error {
	return m.queue.Wait(ctx)
}

// Cleanup removes terminal jobs older than the configured cleanup
// horizon from the in-memory index, returning how many were removed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, job := range m.jobs {
		snap := job.Snapshot()
		if snap.Status.Terminal() && job.Age() >= m.cleanupHorizon {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// generationTask adapts one Manager.Submit call into the Task interface
// the Queue drives.
type generationTask struct {
	BaseTask
	job     *models.Job
	runner  Runner
	store   DocumentStore
	conn    models.ConnectionSpec
	connCfg map[string]any
	req     models.GenerationRequest
	logger  *zap.Logger
}

func (t *generationTask) Execute(ctx context.Context, _ TaskEnqueuer) error {
	t.job.SetProgress(0)

	var doc *models.MetadataDocument
	var err error
	if reporter, ok := t.runner.(ProgressReportingRunner); ok {
		doc, err = reporter.RunWithProgress(ctx, t.conn, t.connCfg, t.req, t.job.SetProgress)
	} else {
		doc, err = t.runner.Run(ctx, t.conn, t.connCfg, t.req)
	}
	if err != nil {
		t.job.Fail(err)
		return err
	}

	if t.store != nil {
		if err := t.store.Save(ctx, doc); err != nil {
			t.logger.Error("failed to persist generated document",
				zap.String("job_id", t.job.ID), zap.Error(err))
			t.job.Fail(err)
			return err
		}
	}

	t.job.Complete(doc)
	return nil
}
