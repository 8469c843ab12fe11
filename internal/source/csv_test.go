package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

const tripHeader = "VendorID,tpep_pickup_datetime,tpep_dropoff_datetime,passenger_count,trip_distance,RatecodeID,store_and_fwd_flag,PULocationID,DOLocationID,payment_type,fare_amount,extra,mta_tax,tip_amount,tolls_amount,improvement_surcharge,total_amount,congestion_surcharge\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenTripCSVMissingFile(t *testing.T) {
	_, err := OpenTripCSV(filepath.Join(t.TempDir(), "nope.csv"), 10)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOpenTripCSVSchemaMismatch(t *testing.T) {
	path := writeFile(t, "bad.csv", "foo,bar\n1,2\n")
	_, err := OpenTripCSV(path, 10)
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestNextBatchSizes(t *testing.T) {
	content := tripHeader
	for i := 0; i < 5; i++ {
		content += "2,2019-01-15 08:30:00,2019-01-15 08:45:00,1,3.0,1,N,100,200,1,12.5,0.5,0.5,2.0,0,0.3,15.8,2.5\n"
	}
	src, err := OpenTripCSV(writeFile(t, "trips.csv", content), 2)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx := context.Background()
	sizes := []int{}
	for {
		batch, err := src.NextBatch(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, len(batch))
	}
	want := []int{2, 2, 1}
	if len(sizes) != len(want) {
		t.Fatalf("got batches %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("got batches %v, want %v", sizes, want)
		}
	}
}

func TestNextBatchFieldParsing(t *testing.T) {
	content := tripHeader +
		"2,2019-01-15 08:30:00,2019-01-15 08:45:00,1.0,3.0,1,N,100,200,1,12.5,0.5,0.5,2.0,0,0.3,15.8,2.5\n" +
		",2019-01-15 09:00:00,2019-01-15 09:10:00,,,,,100,abc,1,oops,,,,,,,\n"
	src, err := OpenTripCSV(writeFile(t, "trips.csv", content), 10)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	batch, err := src.NextBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 records, got %d", len(batch))
	}

	full := batch[0]
	if full.VendorID == nil || *full.VendorID != 2 {
		t.Fatalf("vendor id = %v", full.VendorID)
	}
	if full.PassengerCount == nil || *full.PassengerCount != 1 {
		t.Fatalf("passenger count = %v (float rendering should parse)", full.PassengerCount)
	}
	if full.FareAmount == nil || *full.FareAmount != 12.5 {
		t.Fatalf("fare = %v", full.FareAmount)
	}
	if full.TotalAmount != 15.8 {
		t.Fatalf("total = %v", full.TotalAmount)
	}

	sparse := batch[1]
	if sparse.VendorID != nil {
		t.Fatal("blank vendor id should be nil")
	}
	if sparse.DOLocationID != nil {
		t.Fatal("malformed dropoff location should be nil")
	}
	if sparse.FareAmount != nil {
		t.Fatal("non-numeric fare should be nil")
	}
	if sparse.TipAmount != 0 || sparse.Extra != 0 {
		t.Fatal("blank monetary columns should default to 0")
	}
	if sparse.CongestionSurcharge != nil {
		t.Fatal("blank congestion surcharge should stay nil for the fill rule")
	}
}

func TestNextBatchEOFOnEmptyFile(t *testing.T) {
	src, err := OpenTripCSV(writeFile(t, "trips.csv", tripHeader), 10)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	if _, err := src.NextBatch(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestNextBatchCancelledContext(t *testing.T) {
	src, err := OpenTripCSV(writeFile(t, "trips.csv", tripHeader), 10)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.NextBatch(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
