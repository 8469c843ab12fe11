package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"taxi_explorer/internal/events"
	"taxi_explorer/internal/jobs"
	"taxi_explorer/internal/pipeline"
	"taxi_explorer/internal/source"
)

// BuildRegistry maps load stages to their implementations. Stages read
// configuration through the runner's ExecutionContext.
func BuildRegistry() jobs.Registry {
	return jobs.Registry{
		jobs.StageLoadZones:      loadZones,
		jobs.StageLoadGeometries: loadGeometries,
		jobs.StageLoadTrips:      loadTrips,
	}
}

func loadZones(ctx context.Context, execCtx jobs.ExecutionContext, subject string, params map[string]any) error {
	zones, err := source.ReadZoneLookup(subject)
	if err != nil {
		return fmt.Errorf("load zones: %w", err)
	}
	for _, z := range zones {
		if err := execCtx.Store.UpsertZone(ctx, z); err != nil {
			return fmt.Errorf("load zones: upsert %d: %w", z.LocationID, err)
		}
	}
	execCtx.Logf(fmt.Sprintf("loaded %d zones from %s", len(zones), subject))
	return nil
}

func loadGeometries(ctx context.Context, execCtx jobs.ExecutionContext, subject string, params map[string]any) error {
	geoms, err := source.ReadZoneGeoJSON(subject)
	if err != nil {
		return fmt.Errorf("load geometries: %w", err)
	}
	for _, g := range geoms {
		if err := execCtx.Store.UpsertZoneGeometry(ctx, g); err != nil {
			return fmt.Errorf("load geometries: upsert %d: %w", g.LocationID, err)
		}
	}
	execCtx.Logf(fmt.Sprintf("loaded %d zone geometries from %s", len(geoms), subject))
	return nil
}

// loadTrips runs the full cleaning pipeline over one trip CSV and writes the
// audit report. params: reset (bool, default true), sample_size (number,
// default from config).
func loadTrips(ctx context.Context, execCtx jobs.ExecutionContext, subject string, params map[string]any) error {
	reset := true
	if v, ok := params["reset"].(bool); ok {
		reset = v
	}
	sampleSize := execCtx.Cfg.SampleSize
	if v, ok := params["sample_size"].(float64); ok && v > 0 {
		sampleSize = int64(v)
	}

	src, err := source.OpenTripCSV(subject, execCtx.Cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("load trips: %w", err)
	}
	defer src.Close()

	if reset {
		if err := execCtx.Store.ResetTrips(ctx); err != nil {
			return fmt.Errorf("load trips: reset: %w", err)
		}
		execCtx.Logf("cleared existing trips")
	}

	summary, err := pipeline.Run(ctx, src, execCtx.Store, pipeline.Options{SampleSize: sampleSize})
	if err != nil {
		return fmt.Errorf("load trips: %w", err)
	}

	stats := summary.Stats
	execCtx.Logf(fmt.Sprintf("cleaning done: %d raw, %d kept, %d excluded",
		stats.TotalRaw, stats.TotalKept, stats.TotalExcluded))
	if execCtx.Metrics != nil {
		execCtx.Metrics.RecordCleaningRun(stats.TotalKept, stats.TotalExcluded)
	}
	if execCtx.Bus != nil {
		execCtx.Bus.Publish(events.RunEvent{
			JobID:    execCtx.JobID,
			Raw:      stats.TotalRaw,
			Kept:     stats.TotalKept,
			Excluded: stats.TotalExcluded,
			At:       time.Now().UTC(),
		})
	}

	if path := execCtx.Cfg.AuditLogPath; path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("load trips: audit log: %w", err)
		}
		defer f.Close()
		if err := pipeline.WriteReport(f, summary); err != nil {
			return fmt.Errorf("load trips: audit log: %w", err)
		}
		execCtx.Logf("audit report written to " + path)
	}
	return nil
}
