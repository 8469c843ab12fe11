package trips

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RawTripRecord is one untreated row from the source file. Optional fields are
// pointers; nil means the value was absent or unparseable in the source.
// Monetary surcharges default to 0 at construction time when blank.
type RawTripRecord struct {
	VendorID             *int64
	PickupTime           *string
	DropoffTime          *string
	PassengerCount       *int64
	TripDistance         *float64
	RateCodeID           *int64
	StoreAndFwdFlag      *string
	PULocationID         *int64
	DOLocationID         *int64
	PaymentType          *int64
	FareAmount           *float64
	Extra                float64
	MTATax               float64
	TipAmount            float64
	TollsAmount          float64
	ImprovementSurcharge float64
	TotalAmount          float64
	CongestionSurcharge  *float64
}

// Fingerprint returns a stable hash over every raw field, used for
// within-batch duplicate detection.
func (r RawTripRecord) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v",
		i64(r.VendorID), str(r.PickupTime), str(r.DropoffTime), i64(r.PassengerCount),
		f64(r.TripDistance), i64(r.RateCodeID), str(r.StoreAndFwdFlag),
		i64(r.PULocationID), i64(r.DOLocationID), i64(r.PaymentType), f64(r.FareAmount),
		r.Extra, r.MTATax, r.TipAmount, r.TollsAmount, r.ImprovementSurcharge,
		r.TotalAmount, f64(r.CongestionSurcharge))
	return hex.EncodeToString(h.Sum(nil))
}

func i64(p *int64) any {
	if p == nil {
		return "-"
	}
	return *p
}

func f64(p *float64) any {
	if p == nil {
		return "-"
	}
	return *p
}

func str(p *string) any {
	if p == nil {
		return "-"
	}
	return *p
}

// CleanTripRecord is a raw record that passed every validation rule, carrying
// the six engineered features. It is inserted into the sink exactly once and
// never mutated afterwards.
type CleanTripRecord struct {
	VendorID             *int64
	PickupTime           time.Time
	DropoffTime          time.Time
	PassengerCount       int64
	TripDistance         float64
	RateCodeID           *int64
	StoreAndFwdFlag      *string
	PULocationID         int64
	DOLocationID         int64
	PaymentType          *int64
	FareAmount           float64
	Extra                float64
	MTATax               float64
	TipAmount            float64
	TollsAmount          float64
	ImprovementSurcharge float64
	TotalAmount          float64
	CongestionSurcharge  float64

	TripDurationMinutes float64
	SpeedMPH            float64
	FarePerMile         float64
	PickupHour          int
	PickupDayOfWeek     int // 0=Monday .. 6=Sunday
	IsWeekend           bool
}

// Reason identifies why a record was dropped.
type Reason string

const (
	ReasonMissingValues       Reason = "missing_values"
	ReasonNegativeFare        Reason = "negative_fare"
	ReasonUnrealisticDistance Reason = "unrealistic_distance"
	ReasonUnrealisticDuration Reason = "unrealistic_duration"
	ReasonUnrealisticSpeed    Reason = "unrealistic_speed"
	ReasonWrongDateRange      Reason = "wrong_date_range"
	ReasonDuplicates          Reason = "duplicates"
	ReasonInvalidLocation     Reason = "invalid_location"
	ReasonNegativePassengers  Reason = "negative_passengers"
)

// Reasons lists every exclusion reason in report order.
var Reasons = []Reason{
	ReasonMissingValues,
	ReasonNegativeFare,
	ReasonUnrealisticDistance,
	ReasonUnrealisticDuration,
	ReasonUnrealisticSpeed,
	ReasonWrongDateRange,
	ReasonDuplicates,
	ReasonInvalidLocation,
	ReasonNegativePassengers,
}

// RunStats accumulates counts across one pipeline run. It is threaded
// explicitly through each batch step rather than kept as global state.
type RunStats struct {
	TotalRaw      int64
	TotalKept     int64
	TotalExcluded int64
	Exclusions    map[Reason]int64
}

// NewRunStats returns a zeroed accumulator with every reason present.
func NewRunStats() *RunStats {
	m := make(map[Reason]int64, len(Reasons))
	for _, r := range Reasons {
		m[r] = 0
	}
	return &RunStats{Exclusions: m}
}

// Exclude tallies one dropped record.
func (s *RunStats) Exclude(r Reason) {
	s.TotalExcluded++
	s.Exclusions[r]++
}
