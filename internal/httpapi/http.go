// Package httpapi serves the dashboard API under /api and the operational
// surface under /ops.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"taxi_explorer/internal/config"
	"taxi_explorer/internal/jobs"
	"taxi_explorer/internal/metrics"
	"taxi_explorer/internal/ranking"
	"taxi_explorer/internal/store"
)

const (
	defaultTopK     = 10
	maxTopK         = 100
	topKSampleSize  = 1000
	defaultSearchN  = 100
	maxSearchN      = 1000
	defaultZoneTopN = 10
	maxZoneTopN     = 50
)

// sortKeys whitelists the sortable fields for /api/search.
var sortKeys = map[string]func(store.TripSummary) float64{
	"fare_amount":           func(t store.TripSummary) float64 { return t.FareAmount },
	"trip_distance":         func(t store.TripSummary) float64 { return t.TripDistance },
	"trip_duration_minutes": func(t store.TripSummary) float64 { return t.TripDurationMinutes },
	"speed_mph":             func(t store.TripSummary) float64 { return t.SpeedMPH },
	"total_amount":          func(t store.TripSummary) float64 { return t.TotalAmount },
	"tip_amount":            func(t store.TripSummary) float64 { return t.TipAmount },
}

// Router builds HTTP handlers for /api and /ops.
type Router struct {
	cfg     config.Config
	store   *store.Store
	runner  *jobs.Runner
	metrics *metrics.Metrics
}

func NewRouter(cfg config.Config, st *store.Store, runner *jobs.Runner, m *metrics.Metrics) *Router {
	return &Router{cfg: cfg, store: st, runner: runner, metrics: m}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats", r.stats)
	mux.HandleFunc("/api/trips", r.trips)
	mux.HandleFunc("/api/hourly", r.hourly)
	mux.HandleFunc("/api/daily", r.daily)
	mux.HandleFunc("/api/boroughs", r.boroughs)
	mux.HandleFunc("/api/top-zones", r.topZones)
	mux.HandleFunc("/api/fare-distribution", r.fareDistribution)
	mux.HandleFunc("/api/zones/geojson", r.zonesGeoJSON)
	mux.HandleFunc("/api/zone-heatmap", r.zoneHeatmap)
	mux.HandleFunc("/api/speed-analysis", r.speedAnalysis)
	mux.HandleFunc("/api/payment-analysis", r.paymentAnalysis)
	mux.HandleFunc("/api/weekday-vs-weekend", r.weekdayWeekend)
	mux.HandleFunc("/api/top-expensive", r.topExpensive)
	mux.HandleFunc("/api/search", r.search)

	mux.HandleFunc("/ops/health", r.health)
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/jobs", r.jobs)
	mux.HandleFunc("/ops/jobs/enqueue", r.enqueue)
	mux.HandleFunc("/ops/jobs/", r.jobDetail)
}

func (r *Router) stats(w http.ResponseWriter, req *http.Request) {
	st, err := r.store.Stats(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, st)
}

func (r *Router) trips(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	filter := store.TripFilter{Borough: q.Get("borough")}
	if v, ok := queryFloat(q.Get("min_fare")); ok {
		filter.MinFare = &v
	}
	if v, ok := queryFloat(q.Get("max_fare")); ok {
		filter.MaxFare = &v
	}
	if v, ok := queryFloat(q.Get("min_distance")); ok {
		filter.MinDistance = &v
	}
	if v, ok := queryFloat(q.Get("max_distance")); ok {
		filter.MaxDistance = &v
	}
	if v, ok := queryInt(q.Get("hour")); ok {
		filter.Hour = &v
	}
	if v, ok := queryInt(q.Get("day")); ok {
		filter.Day = &v
	}
	if v, ok := queryInt(q.Get("payment_type")); ok {
		pt := int64(v)
		filter.PaymentType = &pt
	}

	page, _ := queryInt(q.Get("page"))
	perPage, _ := queryInt(q.Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	result, err := r.store.ListTrips(req.Context(), filter, page, perPage)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, result)
}

func (r *Router) hourly(w http.ResponseWriter, req *http.Request) {
	out, err := r.store.Hourly(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, out)
}

func (r *Router) daily(w http.ResponseWriter, req *http.Request) {
	out, err := r.store.Daily(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, out)
}

func (r *Router) boroughs(w http.ResponseWriter, req *http.Request) {
	out, err := r.store.Boroughs(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, out)
}

func (r *Router) topZones(w http.ResponseWriter, req *http.Request) {
	byPickup := req.URL.Query().Get("by") != "dropoff"
	limit, _ := queryInt(req.URL.Query().Get("limit"))
	if limit < 1 || limit > maxZoneTopN {
		limit = defaultZoneTopN
	}
	out, err := r.store.TopZones(req.Context(), byPickup, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, out)
}

func (r *Router) fareDistribution(w http.ResponseWriter, req *http.Request) {
	out, err := r.store.FareDistribution(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, out)
}

func (r *Router) zonesGeoJSON(w http.ResponseWriter, req *http.Request) {
	feats, err := r.store.ZoneGeometries(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	features := make([]map[string]any, 0, len(feats))
	for _, f := range feats {
		features = append(features, map[string]any{
			"type": "Feature",
			"properties": map[string]any{
				"location_id":  f.LocationID,
				"zone":         f.ZoneName,
				"borough":      f.Borough,
				"service_zone": f.ServiceZone,
			},
			"geometry": json.RawMessage(f.GeometryJSON),
		})
	}
	respondJSON(w, map[string]any{"type": "FeatureCollection", "features": features})
}

func (r *Router) zoneHeatmap(w http.ResponseWriter, req *http.Request) {
	out, err := r.store.ZoneHeatmap(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, out)
}

func (r *Router) speedAnalysis(w http.ResponseWriter, req *http.Request) {
	out, err := r.store.SpeedAnalysis(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, out)
}

func (r *Router) paymentAnalysis(w http.ResponseWriter, req *http.Request) {
	out, err := r.store.PaymentAnalysis(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, out)
}

func (r *Router) weekdayWeekend(w http.ResponseWriter, req *http.Request) {
	out, err := r.store.WeekdayVsWeekend(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, out)
}

// topExpensive ranks a bounded sample of trips by fare amount using the
// linear top-k selector.
func (r *Router) topExpensive(w http.ResponseWriter, req *http.Request) {
	k, _ := queryInt(req.URL.Query().Get("k"))
	if k < 1 || k > maxTopK {
		k = defaultTopK
	}
	sample, err := r.store.SampleTrips(req.Context(), topKSampleSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	top, err := ranking.SelectTopK(sample, k, func(t store.TripSummary) float64 { return t.FareAmount })
	if err != nil {
		if errors.Is(err, ranking.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"k": k, "sample_size": len(sample), "trips": top})
}

// search matches trips by zone name and sorts them with the bucket sort. The
// sort field must be whitelisted; order=desc reverses the sorted slice.
func (r *Router) search(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	sortBy := q.Get("sort_by")
	if sortBy == "" {
		sortBy = "fare_amount"
	}
	key, ok := sortKeys[sortBy]
	if !ok {
		http.Error(w, "unsupported sort_by "+sortBy, http.StatusBadRequest)
		return
	}
	limit, _ := queryInt(q.Get("limit"))
	if limit < 1 || limit > maxSearchN {
		limit = defaultSearchN
	}

	found, err := r.store.SearchTrips(req.Context(), q.Get("zone"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sorted, err := ranking.BucketSort(found, key, ranking.DefaultBucketCount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if strings.EqualFold(q.Get("order"), "desc") {
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
	}
	respondJSON(w, map[string]any{"sort_by": sortBy, "count": len(sorted), "trips": sorted})
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	tripCount, _ := r.store.CountTrips(ctx)
	zoneCount, _ := r.store.CountZones(ctx)
	recent, _ := r.store.ListJobs(ctx, 10)
	respondJSON(w, map[string]any{
		"trips":   tripCount,
		"zones":   zoneCount,
		"jobs":    recent,
		"workers": r.cfg.WorkerCount,
		"metrics": r.metrics.Snapshot(),
	})
}

func (r *Router) jobs(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListJobs(req.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) enqueue(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Subject string      `json:"subject"`
		Stage   jobs.Stage  `json:"stage"`
		Params  interface{} `json:"params"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, ok := body.Params.(map[string]any)
	if !ok {
		p = map[string]any{}
	}
	job, err := r.runner.Enqueue(req.Context(), body.Subject, body.Stage, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, job)
}

func (r *Router) jobDetail(w http.ResponseWriter, req *http.Request) {
	// /ops/jobs/{id} or /ops/jobs/{id}/logs
	path := strings.TrimPrefix(req.URL.Path, "/ops/jobs/")
	if id, ok := strings.CutSuffix(path, "/logs"); ok {
		respondJSON(w, r.runner.Logs(id))
		return
	}
	job, err := r.store.GetJob(req.Context(), path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.NotFound(w, req)
		return
	}
	respondJSON(w, job)
}

func queryInt(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func queryFloat(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json: %v", err)
	}
}
