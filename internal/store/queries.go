package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DatasetStats is the overall snapshot served by /api/stats.
type DatasetStats struct {
	TotalTrips    int64   `json:"total_trips"`
	AvgDistance   float64 `json:"avg_distance"`
	AvgDuration   float64 `json:"avg_duration"`
	AvgFare       float64 `json:"avg_fare"`
	AvgSpeed      float64 `json:"avg_speed"`
	AvgTip        float64 `json:"avg_tip"`
	AvgTotal      float64 `json:"avg_total"`
	TotalRevenue  float64 `json:"total_revenue"`
	AvgPassengers float64 `json:"avg_passengers"`
	ActiveZones   int64   `json:"active_zones"`
}

func (s *Store) Stats(ctx context.Context) (DatasetStats, error) {
	var st DatasetStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips`).Scan(&st.TotalTrips); err != nil {
		return st, err
	}
	if st.TotalTrips == 0 {
		return st, nil
	}
	err := s.db.QueryRowContext(ctx, `SELECT
		AVG(trip_distance), AVG(trip_duration_minutes), AVG(fare_amount),
		AVG(speed_mph), AVG(tip_amount), AVG(total_amount),
		SUM(total_amount), AVG(passenger_count)
	FROM trips`).Scan(&st.AvgDistance, &st.AvgDuration, &st.AvgFare,
		&st.AvgSpeed, &st.AvgTip, &st.AvgTotal, &st.TotalRevenue, &st.AvgPassengers)
	if err != nil {
		return st, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT pickup_location_id) FROM trips`).Scan(&st.ActiveZones)
	return st, err
}

// HourlyStat aggregates trips for one hour of the day.
type HourlyStat struct {
	Hour        int     `json:"hour"`
	TripCount   int64   `json:"trip_count"`
	AvgFare     float64 `json:"avg_fare"`
	AvgDuration float64 `json:"avg_duration"`
	AvgSpeed    float64 `json:"avg_speed"`
	AvgTip      float64 `json:"avg_tip"`
}

func (s *Store) Hourly(ctx context.Context) ([]HourlyStat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pickup_hour, COUNT(*),
		AVG(fare_amount), AVG(trip_duration_minutes), AVG(speed_mph), AVG(tip_amount)
	FROM trips GROUP BY pickup_hour ORDER BY pickup_hour`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HourlyStat
	for rows.Next() {
		var h HourlyStat
		if err := rows.Scan(&h.Hour, &h.TripCount, &h.AvgFare, &h.AvgDuration, &h.AvgSpeed, &h.AvgTip); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DailyStat aggregates trips for one day of the week (0=Monday).
type DailyStat struct {
	Day         int     `json:"day"`
	DayName     string  `json:"day_name"`
	TripCount   int64   `json:"trip_count"`
	AvgFare     float64 `json:"avg_fare"`
	AvgDistance float64 `json:"avg_distance"`
}

func (s *Store) Daily(ctx context.Context) ([]DailyStat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pickup_day_of_week, COUNT(*),
		AVG(fare_amount), AVG(trip_distance)
	FROM trips GROUP BY pickup_day_of_week ORDER BY pickup_day_of_week`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailyStat
	for rows.Next() {
		var d DailyStat
		if err := rows.Scan(&d.Day, &d.TripCount, &d.AvgFare, &d.AvgDistance); err != nil {
			return nil, err
		}
		if d.Day >= 0 && d.Day < len(dayNames) {
			d.DayName = dayNames[d.Day]
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// BoroughStat aggregates trips by pickup borough.
type BoroughStat struct {
	Borough      string  `json:"borough"`
	TripCount    int64   `json:"trip_count"`
	AvgFare      float64 `json:"avg_fare"`
	AvgDistance  float64 `json:"avg_distance"`
	AvgDuration  float64 `json:"avg_duration"`
	AvgSpeed     float64 `json:"avg_speed"`
	AvgTip       float64 `json:"avg_tip"`
	TotalRevenue float64 `json:"total_revenue"`
}

func (s *Store) Boroughs(ctx context.Context) ([]BoroughStat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT z.borough, COUNT(*),
		AVG(t.fare_amount), AVG(t.trip_distance), AVG(t.trip_duration_minutes),
		AVG(t.speed_mph), AVG(t.tip_amount), SUM(t.total_amount)
	FROM trips t
	JOIN taxi_zones z ON t.pickup_location_id = z.location_id
	GROUP BY z.borough ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BoroughStat
	for rows.Next() {
		var b BoroughStat
		if err := rows.Scan(&b.Borough, &b.TripCount, &b.AvgFare, &b.AvgDistance,
			&b.AvgDuration, &b.AvgSpeed, &b.AvgTip, &b.TotalRevenue); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ZoneCount is one entry of a top pickup/dropoff zone list.
type ZoneCount struct {
	ZoneName  string `json:"zone_name"`
	Borough   string `json:"borough"`
	TripCount int64  `json:"trip_count"`
}

func (s *Store) TopZones(ctx context.Context, byPickup bool, limit int) ([]ZoneCount, error) {
	col := "dropoff_location_id"
	if byPickup {
		col = "pickup_location_id"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT z.zone_name, z.borough, COUNT(*) AS trip_count
	FROM trips t
	JOIN taxi_zones z ON t.%s = z.location_id
	GROUP BY t.%s ORDER BY trip_count DESC LIMIT ?`, col, col), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ZoneCount
	for rows.Next() {
		var z ZoneCount
		if err := rows.Scan(&z.ZoneName, &z.Borough, &z.TripCount); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

// FareBucket is one $5-wide slice of the fare histogram.
type FareBucket struct {
	Range   string  `json:"range"`
	Count   int64   `json:"count"`
	AvgFare float64 `json:"avg_fare"`
}

func (s *Store) FareDistribution(ctx context.Context) ([]FareBucket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT CAST(fare_amount / 5 AS INT) * 5 AS bucket_start,
		COUNT(*), AVG(fare_amount)
	FROM trips WHERE fare_amount > 0 AND fare_amount <= 100
	GROUP BY CAST(fare_amount / 5 AS INT) ORDER BY bucket_start`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FareBucket
	for rows.Next() {
		var start int64
		var b FareBucket
		if err := rows.Scan(&start, &b.Count, &b.AvgFare); err != nil {
			return nil, err
		}
		b.Range = fmt.Sprintf("$%d-$%d", start, start+5)
		out = append(out, b)
	}
	return out, rows.Err()
}

// HeatmapCell is one zone's pickup density.
type HeatmapCell struct {
	LocationID  int64   `json:"location_id"`
	ZoneName    string  `json:"zone_name"`
	Borough     string  `json:"borough"`
	PickupCount int64   `json:"pickup_count"`
	AvgFare     float64 `json:"avg_fare"`
}

func (s *Store) ZoneHeatmap(ctx context.Context) ([]HeatmapCell, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT t.pickup_location_id, z.zone_name, z.borough,
		COUNT(*) AS pickup_count, AVG(t.fare_amount)
	FROM trips t
	JOIN taxi_zones z ON t.pickup_location_id = z.location_id
	GROUP BY t.pickup_location_id ORDER BY pickup_count DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HeatmapCell
	for rows.Next() {
		var c HeatmapCell
		if err := rows.Scan(&c.LocationID, &c.ZoneName, &c.Borough, &c.PickupCount, &c.AvgFare); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SpeedCell is average speed for one borough and hour.
type SpeedCell struct {
	Borough   string  `json:"borough"`
	Hour      int     `json:"hour"`
	AvgSpeed  float64 `json:"avg_speed"`
	TripCount int64   `json:"trip_count"`
}

func (s *Store) SpeedAnalysis(ctx context.Context) ([]SpeedCell, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT z.borough, t.pickup_hour,
		AVG(t.speed_mph), COUNT(*)
	FROM trips t
	JOIN taxi_zones z ON t.pickup_location_id = z.location_id
	WHERE z.borough IN ('Manhattan', 'Brooklyn', 'Queens', 'Bronx')
	GROUP BY z.borough, t.pickup_hour ORDER BY z.borough, t.pickup_hour`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SpeedCell
	for rows.Next() {
		var c SpeedCell
		if err := rows.Scan(&c.Borough, &c.Hour, &c.AvgSpeed, &c.TripCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var paymentNames = map[int64]string{
	1: "Credit Card",
	2: "Cash",
	3: "No Charge",
	4: "Dispute",
	5: "Unknown",
	6: "Voided",
}

// PaymentStat aggregates trips by payment type.
type PaymentStat struct {
	PaymentType  *int64  `json:"payment_type"`
	PaymentName  string  `json:"payment_name"`
	TripCount    int64   `json:"trip_count"`
	AvgFare      float64 `json:"avg_fare"`
	AvgTip       float64 `json:"avg_tip"`
	TotalRevenue float64 `json:"total_revenue"`
}

func (s *Store) PaymentAnalysis(ctx context.Context) ([]PaymentStat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payment_type, COUNT(*),
		AVG(fare_amount), AVG(tip_amount), SUM(total_amount)
	FROM trips GROUP BY payment_type ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentStat
	for rows.Next() {
		var p PaymentStat
		var pt sql.NullInt64
		if err := rows.Scan(&pt, &p.TripCount, &p.AvgFare, &p.AvgTip, &p.TotalRevenue); err != nil {
			return nil, err
		}
		if pt.Valid {
			v := pt.Int64
			p.PaymentType = &v
			if name, ok := paymentNames[v]; ok {
				p.PaymentName = name
			} else {
				p.PaymentName = fmt.Sprintf("Type %d", v)
			}
		} else {
			p.PaymentName = "Unknown"
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PeriodStat compares weekday vs weekend patterns.
type PeriodStat struct {
	Period      string  `json:"period"`
	TripCount   int64   `json:"trip_count"`
	AvgFare     float64 `json:"avg_fare"`
	AvgDistance float64 `json:"avg_distance"`
	AvgDuration float64 `json:"avg_duration"`
	AvgSpeed    float64 `json:"avg_speed"`
	AvgTip      float64 `json:"avg_tip"`
}

func (s *Store) WeekdayVsWeekend(ctx context.Context) ([]PeriodStat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		CASE WHEN is_weekend = 1 THEN 'Weekend' ELSE 'Weekday' END,
		COUNT(*), AVG(fare_amount), AVG(trip_distance),
		AVG(trip_duration_minutes), AVG(speed_mph), AVG(tip_amount)
	FROM trips GROUP BY is_weekend`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PeriodStat
	for rows.Next() {
		var p PeriodStat
		if err := rows.Scan(&p.Period, &p.TripCount, &p.AvgFare, &p.AvgDistance,
			&p.AvgDuration, &p.AvgSpeed, &p.AvgTip); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TripFilter narrows the paginated trip listing.
type TripFilter struct {
	Borough     string
	MinFare     *float64
	MaxFare     *float64
	MinDistance *float64
	MaxDistance *float64
	Hour        *int
	Day         *int
	PaymentType *int64
}

func (f TripFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Borough != "" {
		conds = append(conds, "pickup_location_id IN (SELECT location_id FROM taxi_zones WHERE borough = ?)")
		args = append(args, f.Borough)
	}
	if f.MinFare != nil {
		conds = append(conds, "fare_amount >= ?")
		args = append(args, *f.MinFare)
	}
	if f.MaxFare != nil {
		conds = append(conds, "fare_amount <= ?")
		args = append(args, *f.MaxFare)
	}
	if f.MinDistance != nil {
		conds = append(conds, "trip_distance >= ?")
		args = append(args, *f.MinDistance)
	}
	if f.MaxDistance != nil {
		conds = append(conds, "trip_distance <= ?")
		args = append(args, *f.MaxDistance)
	}
	if f.Hour != nil {
		conds = append(conds, "pickup_hour = ?")
		args = append(args, *f.Hour)
	}
	if f.Day != nil {
		conds = append(conds, "pickup_day_of_week = ?")
		args = append(args, *f.Day)
	}
	if f.PaymentType != nil {
		conds = append(conds, "payment_type = ?")
		args = append(args, *f.PaymentType)
	}
	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// TripRow is one listed trip with zone names joined on.
type TripRow struct {
	TripID              int64   `json:"trip_id"`
	PickupDatetime      string  `json:"pickup_datetime"`
	DropoffDatetime     string  `json:"dropoff_datetime"`
	PassengerCount      int64   `json:"passenger_count"`
	TripDistance        float64 `json:"trip_distance"`
	FareAmount          float64 `json:"fare_amount"`
	TipAmount           float64 `json:"tip_amount"`
	TotalAmount         float64 `json:"total_amount"`
	TripDurationMinutes float64 `json:"trip_duration_minutes"`
	SpeedMPH            float64 `json:"speed_mph"`
	FarePerMile         float64 `json:"fare_per_mile"`
	PickupHour          int     `json:"pickup_hour"`
	PickupDayOfWeek     int     `json:"pickup_day_of_week"`
	IsWeekend           bool    `json:"is_weekend"`
	PaymentType         *int64  `json:"payment_type"`
	PickupZone          string  `json:"pickup_zone"`
	PickupBorough       string  `json:"pickup_borough"`
	DropoffZone         string  `json:"dropoff_zone"`
	DropoffBorough      string  `json:"dropoff_borough"`
}

// TripPage is one page of filtered trips.
type TripPage struct {
	Trips      []TripRow `json:"trips"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PerPage    int       `json:"per_page"`
	TotalPages int64     `json:"total_pages"`
}

func (s *Store) ListTrips(ctx context.Context, f TripFilter, page, perPage int) (TripPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	where, args := f.where()
	result := TripPage{Trips: []TripRow{}, Page: page, PerPage: perPage}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trips WHERE "+where, args...).Scan(&result.Total); err != nil {
		return result, err
	}
	result.TotalPages = (result.Total + int64(perPage) - 1) / int64(perPage)

	query := `SELECT t.trip_id, t.pickup_datetime, t.dropoff_datetime, t.passenger_count,
		t.trip_distance, t.fare_amount, t.tip_amount, t.total_amount,
		t.trip_duration_minutes, t.speed_mph, t.fare_per_mile,
		t.pickup_hour, t.pickup_day_of_week, t.is_weekend, t.payment_type,
		COALESCE(pz.zone_name, 'Unknown'), COALESCE(pz.borough, 'Unknown'),
		COALESCE(dz.zone_name, 'Unknown'), COALESCE(dz.borough, 'Unknown')
	FROM trips t
	LEFT JOIN taxi_zones pz ON t.pickup_location_id = pz.location_id
	LEFT JOIN taxi_zones dz ON t.dropoff_location_id = dz.location_id
	WHERE ` + where + `
	ORDER BY t.pickup_datetime DESC
	LIMIT ? OFFSET ?`
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return result, err
	}
	defer rows.Close()
	for rows.Next() {
		var r TripRow
		var weekend int
		var pt sql.NullInt64
		if err := rows.Scan(&r.TripID, &r.PickupDatetime, &r.DropoffDatetime, &r.PassengerCount,
			&r.TripDistance, &r.FareAmount, &r.TipAmount, &r.TotalAmount,
			&r.TripDurationMinutes, &r.SpeedMPH, &r.FarePerMile,
			&r.PickupHour, &r.PickupDayOfWeek, &weekend, &pt,
			&r.PickupZone, &r.PickupBorough, &r.DropoffZone, &r.DropoffBorough); err != nil {
			return result, err
		}
		r.IsWeekend = weekend == 1
		if pt.Valid {
			v := pt.Int64
			r.PaymentType = &v
		}
		result.Trips = append(result.Trips, r)
	}
	return result, rows.Err()
}

// TripSummary is the slim shape handed to the ranking primitives.
type TripSummary struct {
	TripID              int64   `json:"trip_id"`
	FareAmount          float64 `json:"fare_amount"`
	TripDistance        float64 `json:"trip_distance"`
	TripDurationMinutes float64 `json:"trip_duration_minutes"`
	SpeedMPH            float64 `json:"speed_mph"`
	TotalAmount         float64 `json:"total_amount"`
	TipAmount           float64 `json:"tip_amount"`
	PickupHour          int     `json:"pickup_hour"`
	PickupZone          string  `json:"pickup_zone"`
	PickupBorough       string  `json:"pickup_borough"`
	DropoffZone         string  `json:"dropoff_zone"`
	DropoffBorough      string  `json:"dropoff_borough"`
}

func scanSummaries(rows *sql.Rows) ([]TripSummary, error) {
	defer rows.Close()
	var out []TripSummary
	for rows.Next() {
		var t TripSummary
		if err := rows.Scan(&t.TripID, &t.FareAmount, &t.TripDistance, &t.TripDurationMinutes,
			&t.SpeedMPH, &t.TotalAmount, &t.TipAmount, &t.PickupHour,
			&t.PickupZone, &t.PickupBorough, &t.DropoffZone, &t.DropoffBorough); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const summaryColumns = `t.trip_id, t.fare_amount, t.trip_distance, t.trip_duration_minutes,
	t.speed_mph, t.total_amount, t.tip_amount, t.pickup_hour,
	COALESCE(pz.zone_name, 'Unknown'), COALESCE(pz.borough, 'Unknown'),
	COALESCE(dz.zone_name, 'Unknown'), COALESCE(dz.borough, 'Unknown')`

// SampleTrips returns up to limit trips in insertion order, the candidate
// list for the top-k endpoint.
func (s *Store) SampleTrips(ctx context.Context, limit int) ([]TripSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+summaryColumns+`
	FROM trips t
	LEFT JOIN taxi_zones pz ON t.pickup_location_id = pz.location_id
	LEFT JOIN taxi_zones dz ON t.dropoff_location_id = dz.location_id
	ORDER BY t.trip_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

// SearchTrips returns trips whose pickup or dropoff zone name matches the
// query substring, unordered; ordering is the caller's job.
func (s *Store) SearchTrips(ctx context.Context, zoneQuery string, limit int) ([]TripSummary, error) {
	query := `SELECT ` + summaryColumns + `
	FROM trips t
	JOIN taxi_zones pz ON t.pickup_location_id = pz.location_id
	JOIN taxi_zones dz ON t.dropoff_location_id = dz.location_id`
	var args []any
	if zoneQuery != "" {
		query += ` WHERE (pz.zone_name LIKE ? OR dz.zone_name LIKE ?)`
		pattern := "%" + zoneQuery + "%"
		args = append(args, pattern, pattern)
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

// GeoJSONFeature pairs zone metadata with its opaque geometry for map
// rendering.
type GeoJSONFeature struct {
	LocationID   int64
	ZoneName     string
	Borough      string
	ServiceZone  string
	GeometryJSON string
}

func (s *Store) ZoneGeometries(ctx context.Context) ([]GeoJSONFeature, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT g.location_id, z.zone_name, z.borough, z.service_zone, g.geometry_json
	FROM taxi_zone_geometries g
	JOIN taxi_zones z ON g.location_id = z.location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GeoJSONFeature
	for rows.Next() {
		var f GeoJSONFeature
		if err := rows.Scan(&f.LocationID, &f.ZoneName, &f.Borough, &f.ServiceZone, &f.GeometryJSON); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
