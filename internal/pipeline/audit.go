package pipeline

import (
	"fmt"
	"io"
	"strings"

	"taxi_explorer/internal/trips"
)

// The ordered rule and feature lists printed into every audit report. They
// document the run for humans; nothing parses them back.
var ruleDescriptions = []string{
	"Removed rows missing critical fields (datetimes, location IDs, fare, distance)",
	"Filled missing passenger_count with 1 (assumption: solo rider)",
	"Filled missing congestion_surcharge with 0",
	"Removed rows with unparseable timestamps (counted as missing)",
	"Filtered to January 2019 only (removed date anomalies)",
	"Removed trips with fare <= 0",
	"Removed trips with distance <= 0 or > 200 miles",
	"Removed trips with location IDs outside 1-265",
	"Removed trips with passenger count outside 1-9",
	"Removed duplicate records within a batch",
	"Removed trips with duration < 1 min or > 12 hours",
	"Removed trips with average speed > 80 mph",
}

var featureDescriptions = []string{
	"trip_duration_minutes: (dropoff - pickup) in minutes",
	"speed_mph: distance / (duration in hours)",
	"fare_per_mile: fare_amount / trip_distance",
	"pickup_hour: hour extracted from pickup datetime",
	"pickup_day_of_week: 0=Mon to 6=Sun",
	"is_weekend: true if Saturday/Sunday",
}

const timeFormat = "2006-01-02 15:04:05 MST"

// WriteReport renders the human-readable cleaning log for one finished run.
func WriteReport(w io.Writer, s *Summary) error {
	divider := strings.Repeat("=", 60)
	stats := s.Stats

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", divider)
	fmt.Fprintf(&b, "TAXI TRIP CLEANING LOG\n")
	fmt.Fprintf(&b, "Started: %s\n", s.StartedAt.Format(timeFormat))
	fmt.Fprintf(&b, "%s\n\n", divider)

	fmt.Fprintf(&b, "Sample size target: %d\n", s.Target)
	fmt.Fprintf(&b, "Batches processed: %d\n", s.Batches)
	fmt.Fprintf(&b, "Total raw records scanned: %d\n", stats.TotalRaw)
	fmt.Fprintf(&b, "Total records kept (cleaned): %d\n", stats.TotalKept)
	fmt.Fprintf(&b, "Total records excluded: %d\n\n", stats.TotalExcluded)

	fmt.Fprintf(&b, "Exclusion Breakdown:\n")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 40))
	for _, reason := range trips.Reasons {
		fmt.Fprintf(&b, "  %s: %d\n", reason, stats.Exclusions[reason])
	}

	fmt.Fprintf(&b, "\nCleaning Rules Applied:\n")
	for i, rule := range ruleDescriptions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, rule)
	}

	fmt.Fprintf(&b, "\nFeatures Engineered:\n")
	for i, feat := range featureDescriptions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, feat)
	}

	fmt.Fprintf(&b, "\nCompleted: %s\n", s.FinishedAt.Format(timeFormat))

	_, err := io.WriteString(w, b.String())
	return err
}
