package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"taxi_explorer/internal/config"
	"taxi_explorer/internal/events"
	"taxi_explorer/internal/metrics"
	"taxi_explorer/internal/queue"
	"taxi_explorer/internal/store"
)

func newTestRunner(t *testing.T, workers int, reg Registry) (*Runner, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Config{WorkerCount: workers, JobQueueSize: 4}
	q := queue.New(cfg.JobQueueSize, cfg.WorkerCount, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx)

	return NewRunner(cfg, st, q, metrics.New(), events.NewBus(), reg), st
}

func TestIdempotentEnqueue(t *testing.T) {
	runner, _ := newTestRunner(t, 0, Registry{})
	ctx := context.Background()

	j1, err := runner.Enqueue(ctx, "trips.csv", StageLoadTrips, map[string]any{"reset": true})
	if err != nil {
		t.Fatalf("enqueue1: %v", err)
	}
	j2, err := runner.Enqueue(ctx, "trips.csv", StageLoadTrips, map[string]any{"reset": true})
	if err != nil {
		t.Fatalf("enqueue2: %v", err)
	}
	if j1.ID != j2.ID {
		t.Fatalf("expected idempotent job, got %s vs %s", j1.ID, j2.ID)
	}
}

func TestDifferentParamsAreDifferentJobs(t *testing.T) {
	runner, _ := newTestRunner(t, 0, Registry{})
	ctx := context.Background()

	j1, err := runner.Enqueue(ctx, "trips.csv", StageLoadTrips, map[string]any{"reset": true})
	if err != nil {
		t.Fatalf("enqueue1: %v", err)
	}
	j2, err := runner.Enqueue(ctx, "trips.csv", StageLoadTrips, map[string]any{"reset": false})
	if err != nil {
		t.Fatalf("enqueue2: %v", err)
	}
	if j1.ID == j2.ID {
		t.Fatalf("expected distinct jobs for distinct params")
	}
}

func TestJobExecutionMarksStatus(t *testing.T) {
	done := make(chan string, 1)
	reg := Registry{
		StageLoadZones: func(ctx context.Context, execCtx ExecutionContext, subject string, params map[string]any) error {
			execCtx.Logf("loading " + subject)
			done <- subject
			return nil
		},
	}
	runner, st := newTestRunner(t, 1, reg)
	ctx := context.Background()

	j, err := runner.Enqueue(ctx, "zones.csv", StageLoadZones, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case subject := <-done:
		if subject != "zones.csv" {
			t.Fatalf("unexpected subject %s", subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job never ran")
	}

	// Status is written after the handler returns, so poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := st.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil && got.Status == StatusSucceeded {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job never marked succeeded")
}

func TestFailedJobRecordsError(t *testing.T) {
	reg := Registry{
		StageLoadTrips: func(ctx context.Context, execCtx ExecutionContext, subject string, params map[string]any) error {
			return context.DeadlineExceeded
		},
	}
	runner, st := newTestRunner(t, 1, reg)
	ctx := context.Background()

	j, err := runner.Enqueue(ctx, "trips.csv", StageLoadTrips, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := st.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil && got.Status == StatusFailed {
			if got.LastError == nil || *got.LastError == "" {
				t.Fatalf("expected last_error to be recorded")
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job never marked failed")
}

func TestUnknownStageFails(t *testing.T) {
	runner, st := newTestRunner(t, 1, Registry{})
	ctx := context.Background()

	j, err := runner.Enqueue(ctx, "mystery.csv", Stage("NOPE"), nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := st.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil && got.Status == StatusFailed {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job never marked failed")
}
