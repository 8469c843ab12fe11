// Package source reads the raw input files: the trip CSV consumed in bounded
// batches by the cleaning pipeline, the taxi zone lookup, and the zone
// geometry GeoJSON.
package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"taxi_explorer/internal/trips"
)

// Column names as they appear in the TLC yellow tripdata export.
var requiredColumns = []string{
	"tpep_pickup_datetime",
	"tpep_dropoff_datetime",
	"PULocationID",
	"DOLocationID",
	"fare_amount",
	"trip_distance",
}

// TripCSV yields raw trip records in batches of a fixed maximum size.
// It holds at most one batch in memory.
type TripCSV struct {
	f         *os.File
	r         *csv.Reader
	cols      map[string]int
	batchSize int
	exhausted bool
}

// OpenTripCSV opens the trip file and validates its header. A missing file or
// a header without the critical columns is a fatal startup error.
func OpenTripCSV(path string, batchSize int) (*TripCSV, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("source: batch size must be positive, got %d", batchSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open trip file: %w", err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		f.Close()
		return nil, fmt.Errorf("source: trip file missing columns: %s", strings.Join(missing, ", "))
	}
	return &TripCSV{f: f, r: r, cols: cols, batchSize: batchSize}, nil
}

// NextBatch returns the next batch of up to batchSize records, or io.EOF once
// the file is exhausted.
func (s *TripCSV) NextBatch(ctx context.Context) ([]trips.RawTripRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.exhausted {
		return nil, io.EOF
	}
	batch := make([]trips.RawTripRecord, 0, s.batchSize)
	for len(batch) < s.batchSize {
		row, err := s.r.Read()
		if err == io.EOF {
			s.exhausted = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("source: read row: %w", err)
		}
		batch = append(batch, s.toRecord(row))
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (s *TripCSV) Close() error { return s.f.Close() }

func (s *TripCSV) toRecord(row []string) trips.RawTripRecord {
	return trips.RawTripRecord{
		VendorID:             s.optInt(row, "VendorID"),
		PickupTime:           s.optString(row, "tpep_pickup_datetime"),
		DropoffTime:          s.optString(row, "tpep_dropoff_datetime"),
		PassengerCount:       s.optInt(row, "passenger_count"),
		TripDistance:         s.optFloat(row, "trip_distance"),
		RateCodeID:           s.optInt(row, "RatecodeID"),
		StoreAndFwdFlag:      s.optString(row, "store_and_fwd_flag"),
		PULocationID:         s.optInt(row, "PULocationID"),
		DOLocationID:         s.optInt(row, "DOLocationID"),
		PaymentType:          s.optInt(row, "payment_type"),
		FareAmount:           s.optFloat(row, "fare_amount"),
		Extra:                s.defFloat(row, "extra"),
		MTATax:               s.defFloat(row, "mta_tax"),
		TipAmount:            s.defFloat(row, "tip_amount"),
		TollsAmount:          s.defFloat(row, "tolls_amount"),
		ImprovementSurcharge: s.defFloat(row, "improvement_surcharge"),
		TotalAmount:          deref(s.optFloat(row, "total_amount")),
		CongestionSurcharge:  s.optFloat(row, "congestion_surcharge"),
	}
}

func (s *TripCSV) cell(row []string, col string) (string, bool) {
	idx, ok := s.cols[col]
	if !ok || idx >= len(row) {
		return "", false
	}
	v := strings.TrimSpace(row[idx])
	if v == "" {
		return "", false
	}
	return v, true
}

func (s *TripCSV) optString(row []string, col string) *string {
	v, ok := s.cell(row, col)
	if !ok {
		return nil
	}
	return &v
}

// optInt treats blank and malformed cells alike: absent. Integer columns in
// the export sometimes carry a float rendering ("1.0"), so fall back to
// parsing as float.
func (s *TripCSV) optInt(row []string, col string) *int64 {
	v, ok := s.cell(row, col)
	if !ok {
		return nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		n := int64(f)
		return &n
	}
	return nil
}

func (s *TripCSV) optFloat(row []string, col string) *float64 {
	v, ok := s.cell(row, col)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

// defFloat applies the explicit 0 default for optional monetary columns.
func (s *TripCSV) defFloat(row []string, col string) float64 {
	return deref(s.optFloat(row, col))
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
