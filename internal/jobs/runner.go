// Package jobs runs persisted load jobs on the shared worker queue.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"taxi_explorer/internal/config"
	"taxi_explorer/internal/events"
	"taxi_explorer/internal/metrics"
	"taxi_explorer/internal/notify"
	"taxi_explorer/internal/queue"
	"taxi_explorer/internal/store"
)

// Status values for jobs.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Stage names one kind of load job.
type Stage string

const (
	StageLoadZones      Stage = "LOAD_ZONES"
	StageLoadGeometries Stage = "LOAD_GEOMETRIES"
	StageLoadTrips      Stage = "LOAD_TRIPS"
)

// ExecutionContext bundles dependencies for stage execution.
type ExecutionContext struct {
	Cfg     config.Config
	Store   *store.Store
	Metrics *metrics.Metrics
	Bus     *events.Bus
	JobID   string
	Logf    func(msg string)
}

// StageFunc is one stage implementation. Subject is the file the job
// operates on.
type StageFunc func(ctx context.Context, execCtx ExecutionContext, subject string, params map[string]any) error

// Registry maps stages to implementations.
type Registry map[Stage]StageFunc

// Runner persists jobs and executes them on the worker queue.
type Runner struct {
	cfg       config.Config
	store     *store.Store
	reg       Registry
	queue     *queue.Queue
	metrics   *metrics.Metrics
	bus       *events.Bus
	logMu     sync.Mutex
	logBuffer map[string][]string
}

// NewRunner constructs a runner on top of an existing worker queue. The
// queue's lifecycle belongs to the caller.
func NewRunner(cfg config.Config, st *store.Store, q *queue.Queue, m *metrics.Metrics, bus *events.Bus, reg Registry) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     st,
		reg:       reg,
		queue:     q,
		metrics:   m,
		bus:       bus,
		logBuffer: make(map[string][]string),
	}
}

// Enqueue persists a job and hands it to the worker queue, respecting
// idempotency. Re-enqueueing the same subject/stage/params returns the
// existing job.
func (r *Runner) Enqueue(ctx context.Context, subject string, stage Stage, params map[string]any) (*store.Job, error) {
	idem := idempotencyKey(subject, stage, params)
	payload, _ := json.Marshal(params)
	ts := now()
	job := &store.Job{
		ID:             uuid.NewString(),
		Stage:          string(stage),
		Subject:        subject,
		Status:         StatusQueued,
		ParamsJSON:     string(payload),
		IdempotencyKey: idem,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	j, err := r.store.InsertJobIdempotent(ctx, job)
	if err == store.ErrConflict {
		return j, nil
	}
	if err != nil {
		return nil, err
	}

	ok := r.queue.Enqueue(queue.Job{
		ID:      j.ID,
		Stage:   j.Stage,
		Subject: j.Subject,
		Work:    func(workCtx context.Context) error { return r.execute(workCtx, j) },
		OnFinish: func(err error) {
			r.metrics.RecordJobCompletion(err)
			st := r.queue.Stats()
			r.metrics.UpdateQueue(st.Length, st.Capacity, st.WorkerCount)
		},
	})
	if !ok {
		msg := "worker queue full"
		_ = r.store.MarkJobFinished(ctx, j.ID, StatusFailed, &msg, now())
		return nil, fmt.Errorf("jobs: %s", msg)
	}
	r.publish(j.ID, stage, subject, StatusQueued)
	return j, nil
}

func (r *Runner) execute(ctx context.Context, job *store.Job) error {
	stage := Stage(job.Stage)
	fn, ok := r.reg[stage]
	if !ok {
		r.appendLog(job.ID, "no handler for stage "+job.Stage)
		msg := "no handler for stage"
		_ = r.store.MarkJobFinished(ctx, job.ID, StatusFailed, &msg, now())
		r.publish(job.ID, stage, job.Subject, StatusFailed)
		return fmt.Errorf("jobs: no handler for stage %s", job.Stage)
	}

	_ = r.store.MarkJobStarted(ctx, job.ID, now())
	r.publish(job.ID, stage, job.Subject, StatusRunning)

	execCtx := ExecutionContext{
		Cfg:     r.cfg,
		Store:   r.store,
		Metrics: r.metrics,
		Bus:     r.bus,
		JobID:   job.ID,
		Logf:    func(msg string) { r.appendLog(job.ID, msg) },
	}
	params := map[string]any{}
	_ = json.Unmarshal([]byte(job.ParamsJSON), &params)

	if err := fn(ctx, execCtx, job.Subject, params); err != nil {
		r.appendLog(job.ID, "error: "+err.Error())
		msg := err.Error()
		_ = r.store.MarkJobFinished(ctx, job.ID, StatusFailed, &msg, now())
		r.publish(job.ID, stage, job.Subject, StatusFailed)
		r.sendWebhook(job, StatusFailed, err.Error())
		return err
	}
	_ = r.store.MarkJobFinished(ctx, job.ID, StatusSucceeded, nil, now())
	r.publish(job.ID, stage, job.Subject, StatusSucceeded)
	r.sendWebhook(job, StatusSucceeded, "")
	return nil
}

func (r *Runner) publish(jobID string, stage Stage, subject, status string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.JobEvent{
		JobID:   jobID,
		Stage:   string(stage),
		Subject: subject,
		Status:  status,
		At:      now(),
	})
}

func (r *Runner) sendWebhook(job *store.Job, status, errMsg string) {
	if r.cfg.WebhookURL == "" {
		return
	}
	summary := notify.RunSummary{
		JobID:   job.ID,
		Stage:   job.Stage,
		Subject: job.Subject,
		Status:  status,
		Error:   errMsg,
	}
	if err := notify.SendWebhook(r.cfg.WebhookURL, summary); err != nil {
		r.appendLog(job.ID, "webhook: "+err.Error())
	}
}

func (r *Runner) appendLog(jobID, msg string) {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	ts := now()
	_ = r.store.AppendJobLog(context.Background(), jobID, msg, ts)
	r.logBuffer[jobID] = append(r.logBuffer[jobID], fmt.Sprintf("%s %s", ts.Format(time.RFC3339), msg))
	if len(r.logBuffer[jobID]) > 200 {
		r.logBuffer[jobID] = r.logBuffer[jobID][len(r.logBuffer[jobID])-200:]
	}
}

// Logs returns the in-memory log buffer for one job.
func (r *Runner) Logs(jobID string) []string {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	return append([]string(nil), r.logBuffer[jobID]...)
}

func idempotencyKey(subject string, stage Stage, params map[string]any) string {
	payload, _ := json.Marshal(params)
	h := sha256.Sum256([]byte(subject + string(stage) + string(payload)))
	return hex.EncodeToString(h[:])
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
