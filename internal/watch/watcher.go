// Package watch monitors the data directory and enqueues load jobs for new
// files.
package watch

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"taxi_explorer/internal/config"
	"taxi_explorer/internal/jobs"
)

// Watcher monitors DATA_DIR for new trip CSVs, zone lookups, and zone
// geometry files.
type Watcher struct {
	cfg    config.Config
	runner *jobs.Runner
}

func New(cfg config.Config, runner *jobs.Runner) *Watcher {
	return &Watcher{cfg: cfg, runner: runner}
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.EnableWatcher {
		log.Println("watcher disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
					w.dispatch(ctx, evt.Name)
				}
			case err := <-watcher.Errors:
				log.Printf("watcher error: %v", err)
			}
		}
	}()
	return watcher.Add(w.cfg.DataDir)
}

func (w *Watcher) dispatch(ctx context.Context, path string) {
	stage, ok := stageFor(path)
	if !ok {
		return
	}
	if _, err := w.runner.Enqueue(ctx, path, stage, map[string]any{}); err != nil {
		log.Printf("watcher: enqueue %s for %s: %v", stage, path, err)
	}
}

// stageFor classifies a file by name. Zone lookups and geometry files are
// named explicitly; any other CSV is treated as trip data.
func stageFor(path string) (jobs.Stage, bool) {
	base := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(base)
	switch {
	case ext == ".geojson":
		return jobs.StageLoadGeometries, true
	case ext == ".csv" && strings.Contains(base, "zone_lookup"):
		return jobs.StageLoadZones, true
	case ext == ".csv":
		return jobs.StageLoadTrips, true
	default:
		return "", false
	}
}

// Backfill enqueues load jobs for files already present in the data
// directory.
func (w *Watcher) Backfill(ctx context.Context) error {
	entries, err := filepath.Glob(filepath.Join(w.cfg.DataDir, "*"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		w.dispatch(ctx, e)
	}
	return nil
}
