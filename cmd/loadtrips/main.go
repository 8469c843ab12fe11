// Command loadtrips runs the cleaning pipeline once, outside the service:
// it loads zones and geometries, cleans the trip CSV into SQLite, and writes
// the audit report.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"taxi_explorer/internal/config"
	"taxi_explorer/internal/pipeline"
	"taxi_explorer/internal/source"
	"taxi_explorer/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	tripsPath := flag.String("trips", cfg.TripsFile, "trip CSV path")
	zonesPath := flag.String("zones", cfg.ZoneLookupFile, "zone lookup CSV path")
	geoPath := flag.String("geojson", cfg.ZoneGeoJSONFile, "zone geometry GeoJSON path")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	auditPath := flag.String("audit", cfg.AuditLogPath, "audit report path")
	sampleSize := flag.Int64("sample", cfg.SampleSize, "sample size target (0 = unlimited)")
	batchSize := flag.Int("batch", cfg.BatchSize, "records per batch")
	reset := flag.Bool("reset", true, "clear existing trips before loading")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	loadZones(ctx, st, *zonesPath)
	loadGeometries(ctx, st, *geoPath)

	src, err := source.OpenTripCSV(*tripsPath, *batchSize)
	if err != nil {
		log.Fatalf("open trips: %v", err)
	}
	defer src.Close()

	if *reset {
		if err := st.ResetTrips(ctx); err != nil {
			log.Fatalf("reset trips: %v", err)
		}
	}

	summary, err := pipeline.Run(ctx, src, st, pipeline.Options{SampleSize: *sampleSize})
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	if err := writeAudit(*auditPath, summary); err != nil {
		log.Fatalf("audit report: %v", err)
	}
	if err := pipeline.WriteReport(os.Stdout, summary); err != nil {
		log.Fatalf("audit report: %v", err)
	}
	log.Printf("done: %d kept, %d excluded (report at %s)",
		summary.Stats.TotalKept, summary.Stats.TotalExcluded, *auditPath)
}

// loadZones and loadGeometries tolerate missing files so a trips-only load
// still works.
func loadZones(ctx context.Context, st *store.Store, path string) {
	if path == "" {
		return
	}
	zones, err := source.ReadZoneLookup(path)
	if err != nil {
		log.Printf("skipping zones (%s): %v", path, err)
		return
	}
	for _, z := range zones {
		if err := st.UpsertZone(ctx, z); err != nil {
			log.Fatalf("upsert zone %d: %v", z.LocationID, err)
		}
	}
	log.Printf("loaded %d zones", len(zones))
}

func loadGeometries(ctx context.Context, st *store.Store, path string) {
	if path == "" {
		return
	}
	geoms, err := source.ReadZoneGeoJSON(path)
	if err != nil {
		log.Printf("skipping geometries (%s): %v", path, err)
		return
	}
	for _, g := range geoms {
		if err := st.UpsertZoneGeometry(ctx, g); err != nil {
			log.Fatalf("upsert geometry %d: %v", g.LocationID, err)
		}
	}
	log.Printf("loaded %d zone geometries", len(geoms))
}

func writeAudit(path string, summary *pipeline.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pipeline.WriteReport(f, summary)
}
