package watch

import (
	"testing"

	"taxi_explorer/internal/jobs"
)

func TestStageFor(t *testing.T) {
	cases := []struct {
		path  string
		stage jobs.Stage
		ok    bool
	}{
		{"data/yellow_tripdata_2019-01.csv", jobs.StageLoadTrips, true},
		{"data/taxi_zone_lookup.csv", jobs.StageLoadZones, true},
		{"data/taxi_zones.geojson", jobs.StageLoadGeometries, true},
		{"data/TAXI_ZONE_LOOKUP.CSV", jobs.StageLoadZones, true},
		{"data/readme.txt", "", false},
		{"data/taxi_data.db", "", false},
	}
	for _, tc := range cases {
		stage, ok := stageFor(tc.path)
		if ok != tc.ok || stage != tc.stage {
			t.Fatalf("stageFor(%s) = %s,%v; want %s,%v", tc.path, stage, ok, tc.stage, tc.ok)
		}
	}
}
