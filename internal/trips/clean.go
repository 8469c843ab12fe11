package trips

import (
	"time"
)

// Analysis window and validation bounds. The dataset snapshot covers January
// 2019 only; rows outside the window are data anomalies, not errors.
var (
	windowStart = time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2019, time.February, 1, 0, 0, 0, 0, time.UTC)
)

const (
	maxDistanceMiles   = 200.0
	minLocationID      = 1
	maxLocationID      = 265
	maxPassengers      = 9
	minDurationMinutes = 1.0
	maxDurationMinutes = 720.0
	maxSpeedMPH        = 80.0
)

var timeLayouts = []string{"2006-01-02 15:04:05", time.RFC3339}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Cleaner applies the validation cascade to one batch at a time. The
// duplicate set is reset per batch: duplicates spanning two batches are not
// detected, matching the source dataset's documented behavior.
type Cleaner struct {
	seen map[string]struct{}
}

func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// BeginBatch resets within-batch duplicate tracking.
func (c *Cleaner) BeginBatch() {
	c.seen = make(map[string]struct{})
}

// Clean runs one raw record through the full rule cascade. It returns the
// cleaned record when every rule passes, otherwise the reason the record was
// dropped. Rule order matters: later rules use fields filled or derived by
// earlier ones.
func (c *Cleaner) Clean(raw RawTripRecord) (CleanTripRecord, Reason, bool) {
	var rec CleanTripRecord

	// Rule 1: critical fields must be present. Unparseable numerics arrive
	// here as nil, so parse failures fold into missing_values as well.
	if raw.PickupTime == nil || raw.DropoffTime == nil ||
		raw.PULocationID == nil || raw.DOLocationID == nil ||
		raw.FareAmount == nil || raw.TripDistance == nil {
		return rec, ReasonMissingValues, false
	}

	// Rule 2: fills, not drops.
	passengers := int64(1)
	if raw.PassengerCount != nil {
		passengers = *raw.PassengerCount
	}
	congestion := 0.0
	if raw.CongestionSurcharge != nil {
		congestion = *raw.CongestionSurcharge
	}

	// Rule 3: unparseable timestamps count as missing.
	pickup, ok := parseTimestamp(*raw.PickupTime)
	if !ok {
		return rec, ReasonMissingValues, false
	}
	dropoff, ok := parseTimestamp(*raw.DropoffTime)
	if !ok {
		return rec, ReasonMissingValues, false
	}

	// Rule 4: fixed analysis window [2019-01-01, 2019-02-01).
	if pickup.Before(windowStart) || !pickup.Before(windowEnd) {
		return rec, ReasonWrongDateRange, false
	}

	// Rule 5.
	if *raw.FareAmount <= 0 {
		return rec, ReasonNegativeFare, false
	}

	// Rule 6.
	if *raw.TripDistance <= 0 || *raw.TripDistance > maxDistanceMiles {
		return rec, ReasonUnrealisticDistance, false
	}

	// Rule 7.
	if *raw.PULocationID < minLocationID || *raw.PULocationID > maxLocationID ||
		*raw.DOLocationID < minLocationID || *raw.DOLocationID > maxLocationID {
		return rec, ReasonInvalidLocation, false
	}

	// Rule 8.
	if passengers <= 0 || passengers > maxPassengers {
		return rec, ReasonNegativePassengers, false
	}

	// Rule 9: within-batch exact duplicates.
	fp := raw.Fingerprint()
	if _, dup := c.seen[fp]; dup {
		return rec, ReasonDuplicates, false
	}
	c.seen[fp] = struct{}{}

	// Rule 10: derive duration, then bound it.
	duration := dropoff.Sub(pickup).Minutes()
	if duration < minDurationMinutes || duration > maxDurationMinutes {
		return rec, ReasonUnrealisticDuration, false
	}

	// Rule 11: derive speed; no lower bound.
	speed := *raw.TripDistance / (duration / 60)
	if speed > maxSpeedMPH {
		return rec, ReasonUnrealisticSpeed, false
	}

	// Rules 12-13: remaining features. Distance is > 0 by rule 6.
	dow := (int(pickup.Weekday()) + 6) % 7 // 0=Monday .. 6=Sunday

	rec = CleanTripRecord{
		VendorID:             raw.VendorID,
		PickupTime:           pickup,
		DropoffTime:          dropoff,
		PassengerCount:       passengers,
		TripDistance:         *raw.TripDistance,
		RateCodeID:           raw.RateCodeID,
		StoreAndFwdFlag:      raw.StoreAndFwdFlag,
		PULocationID:         *raw.PULocationID,
		DOLocationID:         *raw.DOLocationID,
		PaymentType:          raw.PaymentType,
		FareAmount:           *raw.FareAmount,
		Extra:                raw.Extra,
		MTATax:               raw.MTATax,
		TipAmount:            raw.TipAmount,
		TollsAmount:          raw.TollsAmount,
		ImprovementSurcharge: raw.ImprovementSurcharge,
		TotalAmount:          raw.TotalAmount,
		CongestionSurcharge:  congestion,
		TripDurationMinutes:  duration,
		SpeedMPH:             speed,
		FarePerMile:          *raw.FareAmount / *raw.TripDistance,
		PickupHour:           pickup.Hour(),
		PickupDayOfWeek:      dow,
		IsWeekend:            dow >= 5,
	}
	return rec, "", true
}
