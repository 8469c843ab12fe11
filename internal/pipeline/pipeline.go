// Package pipeline runs the trip cleaning pipeline: it pulls raw records from
// a batch source, applies the validation cascade, and writes survivors to a
// sink until the sample-size target is reached or the source is exhausted.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"taxi_explorer/internal/trips"
)

// Source yields raw-record batches of a bounded size. It returns io.EOF when
// the stream is exhausted.
type Source interface {
	NextBatch(ctx context.Context) ([]trips.RawTripRecord, error)
}

// Sink accepts one cleaned record at a time and performs a durable insert.
// An insert failure aborts the whole run: a partially loaded, unaudited
// dataset must never look complete.
type Sink interface {
	InsertTrip(ctx context.Context, rec trips.CleanTripRecord) error
}

// BatchCommitter is implemented by sinks that want a commit boundary after
// each processed batch.
type BatchCommitter interface {
	CommitBatch(ctx context.Context) error
}

// Options configures one run.
type Options struct {
	// SampleSize is the accepted-record target. The run stops accepting as
	// soon as it is reached; 0 or negative means no cap.
	SampleSize int64
}

// Summary is the cleaning-run audit record.
type Summary struct {
	Stats      *trips.RunStats
	Target     int64
	Batches    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Run executes the pipeline to completion. Per-record validation failures are
// tallied and never abort the run; source and sink errors are fatal. The
// context is honored between batches, so a cancelled run stops at the next
// batch boundary.
func Run(ctx context.Context, src Source, sink Sink, opts Options) (*Summary, error) {
	stats := trips.NewRunStats()
	cleaner := trips.NewCleaner()
	summary := &Summary{Stats: stats, Target: opts.SampleSize, StartedAt: time.Now().UTC()}
	committer, canCommit := sink.(BatchCommitter)

	for !targetReached(stats, opts) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		batch, err := src.NextBatch(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("pipeline: source: %w", err)
		}
		summary.Batches++

		cleaner.BeginBatch()
		for _, raw := range batch {
			// Records past the quota are never evaluated; they do not
			// count as scanned, keeping raw = kept + excluded exact.
			if targetReached(stats, opts) {
				break
			}
			stats.TotalRaw++
			rec, reason, ok := cleaner.Clean(raw)
			if !ok {
				stats.Exclude(reason)
				continue
			}
			if err := sink.InsertTrip(ctx, rec); err != nil {
				return summary, fmt.Errorf("pipeline: sink insert: %w", err)
			}
			stats.TotalKept++
		}
		if canCommit {
			if err := committer.CommitBatch(ctx); err != nil {
				return summary, fmt.Errorf("pipeline: sink commit: %w", err)
			}
		}
		log.Printf("pipeline: batch %d: %d raw scanned, %d kept so far (target %d)",
			summary.Batches, stats.TotalRaw, stats.TotalKept, opts.SampleSize)
	}

	summary.FinishedAt = time.Now().UTC()
	return summary, nil
}

func targetReached(stats *trips.RunStats, opts Options) bool {
	return opts.SampleSize > 0 && stats.TotalKept >= opts.SampleSize
}
