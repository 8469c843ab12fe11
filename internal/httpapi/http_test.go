package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"taxi_explorer/internal/config"
	"taxi_explorer/internal/events"
	"taxi_explorer/internal/jobs"
	"taxi_explorer/internal/metrics"
	"taxi_explorer/internal/queue"
	"taxi_explorer/internal/source"
	"taxi_explorer/internal/store"
	"taxi_explorer/internal/trips"
)

func setupTest(t *testing.T) (*http.ServeMux, *store.Store) {
	t.Helper()
	cfg := config.Config{WorkerCount: 0, JobQueueSize: 8}
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	q := queue.New(cfg.JobQueueSize, cfg.WorkerCount, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx)

	runner := jobs.NewRunner(cfg, st, q, metrics.New(), events.NewBus(), jobs.Registry{})
	router := NewRouter(cfg, st, runner, metrics.New())
	mux := http.NewServeMux()
	router.Register(mux)
	return mux, st
}

func seedTrips(t *testing.T, st *store.Store, fares ...float64) {
	t.Helper()
	ctx := context.Background()
	if err := st.UpsertZone(ctx, source.Zone{LocationID: 100, Borough: "Manhattan", ZoneName: "Midtown", ServiceZone: "Yellow"}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertZone(ctx, source.Zone{LocationID: 200, Borough: "Queens", ZoneName: "Astoria", ServiceZone: "Boro"}); err != nil {
		t.Fatal(err)
	}
	pickup := time.Date(2019, 1, 15, 8, 0, 0, 0, time.UTC)
	for i, fare := range fares {
		rec := trips.CleanTripRecord{
			PickupTime:          pickup.Add(time.Duration(i) * time.Minute),
			DropoffTime:         pickup.Add(time.Duration(i)*time.Minute + 30*time.Minute),
			PassengerCount:      1,
			TripDistance:        5,
			PULocationID:        100,
			DOLocationID:        200,
			FareAmount:          fare,
			TotalAmount:         fare + 2,
			TripDurationMinutes: 30,
			SpeedMPH:            10,
			FarePerMile:         fare / 5,
			PickupHour:          8,
			PickupDayOfWeek:     1,
		}
		if err := st.InsertTrip(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.CommitBatch(ctx); err != nil {
		t.Fatal(err)
	}
}

func getJSON(t *testing.T, mux *http.ServeMux, path string, out any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET %s: unexpected status %d: %s", path, rr.Code, rr.Body.String())
	}
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("GET %s: decode: %v", path, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	mux, _ := setupTest(t)
	req := httptest.NewRequest(http.MethodGet, "/ops/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	mux, st := setupTest(t)
	seedTrips(t, st, 10, 20, 30)

	var stats store.DatasetStats
	getJSON(t, mux, "/api/stats", &stats)
	if stats.TotalTrips != 3 {
		t.Fatalf("expected 3 trips, got %d", stats.TotalTrips)
	}
	if stats.AvgFare != 20 {
		t.Fatalf("expected avg fare 20, got %f", stats.AvgFare)
	}
}

func TestTripsEndpointFilters(t *testing.T) {
	mux, st := setupTest(t)
	seedTrips(t, st, 10, 25, 40)

	var page store.TripPage
	getJSON(t, mux, "/api/trips?min_fare=20&per_page=10", &page)
	if page.Total != 2 {
		t.Fatalf("expected 2 filtered trips, got %d", page.Total)
	}
	for _, trip := range page.Trips {
		if trip.FareAmount < 20 {
			t.Fatalf("filter leaked trip with fare %f", trip.FareAmount)
		}
	}
}

func TestTopExpensiveUsesTopK(t *testing.T) {
	mux, st := setupTest(t)
	seedTrips(t, st, 10, 50, 30, 20, 40)

	var resp struct {
		K     int                 `json:"k"`
		Trips []store.TripSummary `json:"trips"`
	}
	getJSON(t, mux, "/api/top-expensive?k=2", &resp)
	if resp.K != 2 || len(resp.Trips) != 2 {
		t.Fatalf("expected 2 results, got k=%d len=%d", resp.K, len(resp.Trips))
	}
	if resp.Trips[0].FareAmount != 50 || resp.Trips[1].FareAmount != 40 {
		t.Fatalf("expected fares 50,40; got %f,%f", resp.Trips[0].FareAmount, resp.Trips[1].FareAmount)
	}
}

func TestTopExpensiveRanksByFareNotTotal(t *testing.T) {
	mux, st := setupTest(t)
	ctx := context.Background()
	if err := st.UpsertZone(ctx, source.Zone{LocationID: 100, Borough: "Manhattan", ZoneName: "Midtown", ServiceZone: "Yellow"}); err != nil {
		t.Fatal(err)
	}
	pickup := time.Date(2019, 1, 15, 8, 0, 0, 0, time.UTC)
	// A heavily tipped cheap trip has the largest total but the smallest fare.
	seed := []struct{ fare, tip float64 }{{10, 40}, {30, 0}, {20, 5}}
	for i, s := range seed {
		rec := trips.CleanTripRecord{
			PickupTime:          pickup.Add(time.Duration(i) * time.Minute),
			DropoffTime:         pickup.Add(time.Duration(i)*time.Minute + 30*time.Minute),
			PassengerCount:      1,
			TripDistance:        5,
			PULocationID:        100,
			DOLocationID:        200,
			FareAmount:          s.fare,
			TipAmount:           s.tip,
			TotalAmount:         s.fare + s.tip,
			TripDurationMinutes: 30,
			SpeedMPH:            10,
			FarePerMile:         s.fare / 5,
			PickupHour:          8,
			PickupDayOfWeek:     1,
		}
		if err := st.InsertTrip(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.CommitBatch(ctx); err != nil {
		t.Fatal(err)
	}

	var resp struct {
		Trips []store.TripSummary `json:"trips"`
	}
	getJSON(t, mux, "/api/top-expensive?k=2", &resp)
	if len(resp.Trips) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Trips))
	}
	if resp.Trips[0].FareAmount != 30 || resp.Trips[1].FareAmount != 20 {
		t.Fatalf("expected fares 30,20; got %f,%f", resp.Trips[0].FareAmount, resp.Trips[1].FareAmount)
	}
}

func TestSearchSortsAndRejectsBadField(t *testing.T) {
	mux, st := setupTest(t)
	seedTrips(t, st, 30, 10, 20)

	var resp struct {
		Trips []store.TripSummary `json:"trips"`
	}
	getJSON(t, mux, "/api/search?zone=Midtown&sort_by=fare_amount", &resp)
	if len(resp.Trips) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(resp.Trips))
	}
	for i := 1; i < len(resp.Trips); i++ {
		if resp.Trips[i].FareAmount < resp.Trips[i-1].FareAmount {
			t.Fatalf("results not ascending at %d", i)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/search?sort_by=pickup_zone", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad sort field, got %d", rr.Code)
	}
}

func TestSearchDescendingOrder(t *testing.T) {
	mux, st := setupTest(t)
	seedTrips(t, st, 10, 30, 20)

	var resp struct {
		Trips []store.TripSummary `json:"trips"`
	}
	getJSON(t, mux, "/api/search?sort_by=fare_amount&order=desc", &resp)
	for i := 1; i < len(resp.Trips); i++ {
		if resp.Trips[i].FareAmount > resp.Trips[i-1].FareAmount {
			t.Fatalf("results not descending at %d", i)
		}
	}
}

func TestZonesGeoJSONEndpoint(t *testing.T) {
	mux, st := setupTest(t)
	ctx := context.Background()
	if err := st.UpsertZone(ctx, source.Zone{LocationID: 100, Borough: "Manhattan", ZoneName: "Midtown", ServiceZone: "Yellow"}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertZoneGeometry(ctx, source.ZoneGeometry{LocationID: 100, GeometryJSON: `{"type":"Polygon","coordinates":[]}`}); err != nil {
		t.Fatal(err)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	getJSON(t, mux, "/api/zones/geojson", &fc)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("unexpected feature collection: %+v", fc)
	}
	if fc.Features[0].Properties["zone"] != "Midtown" {
		t.Fatalf("unexpected zone property: %v", fc.Features[0].Properties["zone"])
	}
}

func TestOpsEnqueueEndpoint(t *testing.T) {
	mux, st := setupTest(t)
	body := bytes.NewBufferString(`{"subject":"trips.csv","stage":"LOAD_TRIPS","params":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/ops/jobs/enqueue", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}

	var job store.Job
	if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
		t.Fatal(err)
	}
	if job.Stage != "LOAD_TRIPS" || job.Subject != "trips.csv" {
		t.Fatalf("unexpected job: %+v", job)
	}

	got, err := st.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatalf("job not persisted")
	}

	detail := httptest.NewRequest(http.MethodGet, "/ops/jobs/"+job.ID, nil)
	rr2 := httptest.NewRecorder()
	mux.ServeHTTP(rr2, detail)
	if rr2.Code != http.StatusOK {
		t.Fatalf("job detail status %d", rr2.Code)
	}
}

func TestOpsJobDetailNotFound(t *testing.T) {
	mux, _ := setupTest(t)
	req := httptest.NewRequest(http.MethodGet, "/ops/jobs/nope", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOpsStatusIncludesMetrics(t *testing.T) {
	mux, st := setupTest(t)
	seedTrips(t, st, 10)

	var status struct {
		Trips   int64            `json:"trips"`
		Zones   int64            `json:"zones"`
		Metrics metrics.Snapshot `json:"metrics"`
	}
	getJSON(t, mux, "/ops/status", &status)
	if status.Trips != 1 || status.Zones != 2 {
		t.Fatalf("unexpected counts: %+v", status)
	}
}
