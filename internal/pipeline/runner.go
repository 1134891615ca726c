package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/alerts"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/risk"
)

// process runs one accepted task end to end. A failure at any stage marks
// the task Failed with the error message; it never takes down the worker.
// Persistence runs on a fresh context so a task in flight during Stop
// still reaches Completed or Failed instead of stranding in Processing.
func (s *Scheduler) process(j *job) {
	ctx := context.Background()
	task := j.task
	start := time.Now()

	task.Status = domain.TaskProcessing
	s.updateTask(ctx, task)

	txs := ingest.Normalize(j.table, j.cols)
	vectors := features.Extract(txs)
	if len(vectors) == 0 {
		s.failTask(ctx, task, "no analyzable rows in upload")
		return
	}

	scores, err := s.registry.Score(vectors, j.useSaved)
	if err != nil {
		s.failTask(ctx, task, "scoring failed: "+err.Error())
		return
	}

	classifications := risk.Classify(vectors, scores)
	s.tagger.Tag(vectors, classifications)

	if err := s.persist(ctx, task, classifications, txs); err != nil {
		s.failTask(ctx, task, "persistence failed: "+err.Error())
		return
	}

	task.Status = domain.TaskCompleted
	task.Progress = 100
	task.ProcessedRecords = len(classifications)
	s.updateTask(ctx, task)
	s.publishTaskEvent(ctx, domain.TopicTaskCompleted, task)

	slog.Info("task completed",
		"task_id", task.TaskID,
		"tenant_id", task.TenantID,
		"accounts", len(classifications),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// persist materializes and stores the run output in account-count chunks,
// refreshing task progress after each chunk so pollers see movement on
// large uploads.
func (s *Scheduler) persist(ctx context.Context, task *domain.ProcessingTask, classifications []domain.Classification, txs []domain.Transaction) error {
	total := len(classifications)
	interval := s.cfg.ProgressInterval

	var alertCount int
	for start := 0; start < total; start += interval {
		end := start + interval
		if end > total {
			end = total
		}

		out := alerts.Materialize(task.TenantID, classifications[start:end], txs)

		if err := s.repo.CreateAccountsIfAbsent(ctx, task.TenantID, out.Accounts); err != nil {
			return err
		}
		if err := s.repo.BulkCreateAlerts(ctx, task.TenantID, out.Alerts); err != nil {
			return err
		}
		if err := s.repo.BulkCreateTransactions(ctx, task.TenantID, out.Evidence); err != nil {
			return err
		}

		s.publishAlerts(ctx, task.TenantID, out.Alerts)
		alertCount += len(out.Alerts)

		task.ProcessedRecords = end
		task.Progress = end * 100 / total
		s.updateTask(ctx, task)
	}

	slog.Debug("run persisted",
		"task_id", task.TaskID,
		"accounts", total,
		"alerts", alertCount,
	)

	return nil
}

func (s *Scheduler) failTask(ctx context.Context, task *domain.ProcessingTask, reason string) {
	task.Status = domain.TaskFailed
	task.ErrorMessage = reason
	s.updateTask(ctx, task)
	s.publishTaskEvent(ctx, domain.TopicTaskFailed, task)

	slog.Error("task failed",
		"task_id", task.TaskID,
		"tenant_id", task.TenantID,
		"reason", reason,
	)
}

func (s *Scheduler) updateTask(ctx context.Context, task *domain.ProcessingTask) {
	task.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		slog.Error("failed to update task",
			"task_id", task.TaskID,
			"error", err,
		)
	}
	s.cacheTask(ctx, task)
}

// publishTaskEvent emits a task lifecycle event. Publish failures are
// logged and swallowed; the pipeline never blocks on the bus.
func (s *Scheduler) publishTaskEvent(ctx context.Context, topic string, task *domain.ProcessingTask) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(task)
	if err := s.bus.Publish(ctx, task.TenantID, topic, payload); err != nil {
		slog.Warn("failed to publish task event",
			"task_id", task.TaskID,
			"topic", topic,
			"error", err,
		)
	}
}

func (s *Scheduler) publishAlerts(ctx context.Context, tenantID string, created []*domain.Alert) {
	if s.bus == nil {
		return
	}
	for _, alert := range created {
		payload, _ := json.Marshal(alert)
		if err := s.bus.Publish(ctx, tenantID, domain.TopicAlertCreated, payload); err != nil {
			slog.Warn("failed to publish alert event",
				"alert_id", alert.AlertID,
				"error", err,
			)
		}
	}
}
