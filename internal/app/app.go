// Package app wires the service components together: store, worker queue,
// job runner, file watcher, and HTTP server.
package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"taxi_explorer/internal/config"
	"taxi_explorer/internal/events"
	"taxi_explorer/internal/httpapi"
	"taxi_explorer/internal/jobs"
	"taxi_explorer/internal/metrics"
	"taxi_explorer/internal/queue"
	"taxi_explorer/internal/store"
	"taxi_explorer/internal/watch"
)

// App owns the data plane components.
type App struct {
	cfg     config.Config
	store   *store.Store
	queue   *queue.Queue
	runner  *jobs.Runner
	watcher *watch.Watcher
	metrics *metrics.Metrics
	bus     *events.Bus
	mux     *http.ServeMux
}

func New(cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	bus := events.NewBus()
	q := queue.New(cfg.JobQueueSize, cfg.WorkerCount, time.Duration(cfg.JobTimeoutSec)*time.Second)
	runner := jobs.NewRunner(cfg, st, q, m, bus, BuildRegistry())
	watcher := watch.New(cfg, runner)
	mux := http.NewServeMux()
	router := httpapi.NewRouter(cfg, st, runner, m)
	router.Register(mux)
	return &App{
		cfg:     cfg,
		store:   st,
		queue:   q,
		runner:  runner,
		watcher: watcher,
		metrics: m,
		bus:     bus,
		mux:     mux,
	}, nil
}

// Run starts workers, the watcher, and the HTTP server, and blocks until the
// context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start(ctx)
	a.metrics.UpdateQueue(0, a.cfg.JobQueueSize, a.cfg.WorkerCount)
	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	go a.logEvents(ctx)

	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		a.queue.Stop(shutdownCtx)
	}()
	log.Printf("http listening on %s", a.cfg.HTTPPort)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (a *App) logEvents(ctx context.Context) {
	sub := a.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			switch e := ev.(type) {
			case events.JobEvent:
				log.Printf("event: job=%s stage=%s subject=%s status=%s", e.JobID, e.Stage, e.Subject, e.Status)
			case events.RunEvent:
				log.Printf("event: job=%s cleaned raw=%d kept=%d excluded=%d", e.JobID, e.Raw, e.Kept, e.Excluded)
			}
		}
	}
}

// EnqueueStage exposes job submission for the CLI and tests.
func (a *App) EnqueueStage(ctx context.Context, subject string, stage jobs.Stage, params map[string]any) (*store.Job, error) {
	return a.runner.Enqueue(ctx, subject, stage, params)
}

func (a *App) Runner() *jobs.Runner { return a.runner }

func (a *App) Store() *store.Store { return a.store }

func (a *App) Watcher() *watch.Watcher { return a.watcher }

func (a *App) Mux() *http.ServeMux { return a.mux }

func (a *App) Close() error { return a.store.Close() }
