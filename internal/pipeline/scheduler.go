// Package pipeline runs asynchronous ingestion tasks through the analysis
// stages: normalize, extract features, score, classify, materialize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/model"
	"github.com/opensource-finance/harrier/internal/risk"
)

// ErrQueueFull is returned by Submit when the pipeline cannot accept more
// work. Callers should surface it as backpressure, not retry immediately.
var ErrQueueFull = errors.New("pipeline queue is full")

// taskCacheTTL bounds how long a cached task snapshot can lag the database.
const taskCacheTTL = 30 * time.Second

type job struct {
	task     *domain.ProcessingTask
	table    *domain.RawTable
	cols     ingest.ColumnMap
	useSaved bool
}

// Scheduler owns the bounded worker pool that executes ingestion tasks.
// Each accepted task is processed by exactly one worker; the queue is a
// buffered channel so submission never spawns unbounded goroutines.
type Scheduler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	registry *model.Registry
	tagger   *risk.Tagger
	cfg      domain.PipelineConfig

	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Call Start before submitting tasks.
func NewScheduler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, registry *model.Registry, tagger *risk.Tagger, cfg domain.PipelineConfig) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		registry: registry,
		tagger:   tagger,
		cfg:      cfg,
		queue:    make(chan *job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			for {
				select {
				case <-s.ctx.Done():
					return
				case j := <-s.queue:
					if j != nil {
						s.process(j)
					}
				}
			}
		}(i)
	}

	slog.Info("pipeline started",
		"workers", s.cfg.Workers,
		"queue_size", s.cfg.QueueSize,
	)
}

// Stop drains the pool. In-flight tasks finish; queued tasks are abandoned
// and remain Pending in storage.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Submit validates the upload's schema and enqueues an analysis task.
// A schema failure still creates the task so the caller can poll it, but
// the task lands in Failed without entering the queue. A full queue
// returns ErrQueueFull and no task is created.
func (s *Scheduler) Submit(ctx context.Context, tenantID string, table *domain.RawTable, useSaved bool) (*domain.ProcessingTask, error) {
	now := time.Now().UTC()
	task := &domain.ProcessingTask{
		TaskID:       uuid.New().String(),
		TenantID:     tenantID,
		Status:       domain.TaskPending,
		TotalRecords: table.RowCount(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	cols, err := ingest.MapColumns(table.Columns)
	if err != nil {
		var schemaErr *ingest.SchemaError
		if errors.As(err, &schemaErr) {
			task.Status = domain.TaskFailed
			task.ErrorMessage = schemaErr.Error()
			if createErr := s.repo.CreateTask(ctx, task); createErr != nil {
				return nil, fmt.Errorf("failed to create task: %w", createErr)
			}
			s.cacheTask(ctx, task)
			s.publishTaskEvent(ctx, domain.TopicTaskFailed, task)
			slog.Warn("upload rejected by schema mapping",
				"task_id", task.TaskID,
				"tenant_id", tenantID,
				"missing", schemaErr.Missing,
			)
			return task, nil
		}
		return nil, err
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	s.cacheTask(ctx, task)

	// The worker gets its own copy of the task record. The pointer
	// returned to the caller is a snapshot; later state lives in storage.
	queued := *task
	select {
	case s.queue <- &job{task: &queued, table: table, cols: cols, useSaved: useSaved}:
	default:
		task.Status = domain.TaskFailed
		task.ErrorMessage = ErrQueueFull.Error()
		task.UpdatedAt = time.Now().UTC()
		if err := s.repo.UpdateTask(ctx, task); err != nil {
			slog.Error("failed to mark task failed",
				"task_id", task.TaskID,
				"error", err,
			)
		}
		s.cacheTask(ctx, task)
		return nil, ErrQueueFull
	}

	s.publishTaskEvent(ctx, domain.TopicTaskAccepted, task)

	slog.Info("task accepted",
		"task_id", task.TaskID,
		"tenant_id", tenantID,
		"rows", task.TotalRecords,
	)

	return task, nil
}

// GetTask reads a task, preferring the cache snapshot over the database.
func (s *Scheduler) GetTask(ctx context.Context, tenantID, taskID string) (*domain.ProcessingTask, error) {
	if s.cache != nil {
		if task, err := s.cache.GetTask(ctx, tenantID, taskID); err == nil && task != nil {
			return task, nil
		}
	}

	task, err := s.repo.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	s.cacheTask(ctx, task)
	return task, nil
}

func (s *Scheduler) cacheTask(ctx context.Context, task *domain.ProcessingTask) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetTask(ctx, task.TenantID, task.TaskID, task, taskCacheTTL); err != nil {
		slog.Debug("failed to cache task snapshot",
			"task_id", task.TaskID,
			"error", err,
		)
	}
}
