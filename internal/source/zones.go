package source

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Zone is one row of the taxi zone lookup table.
type Zone struct {
	LocationID  int64
	Borough     string
	ZoneName    string
	ServiceZone string
}

// ReadZoneLookup parses taxi_zone_lookup.csv. Blank text fields become
// "Unknown"; rows without a numeric LocationID are skipped.
func ReadZoneLookup(path string) ([]Zone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open zone lookup: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("source: read zone header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"LocationID", "Borough", "Zone", "service_zone"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("source: zone lookup missing column %q", required)
		}
	}

	var zones []Zone
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("source: read zone row: %w", err)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[cols["LocationID"]]), 10, 64)
		if err != nil {
			continue
		}
		zones = append(zones, Zone{
			LocationID:  id,
			Borough:     orUnknown(row, cols["Borough"]),
			ZoneName:    orUnknown(row, cols["Zone"]),
			ServiceZone: orUnknown(row, cols["service_zone"]),
		})
	}
	return zones, nil
}

func orUnknown(row []string, idx int) string {
	if idx >= len(row) {
		return "Unknown"
	}
	v := strings.TrimSpace(row[idx])
	if v == "" {
		return "Unknown"
	}
	return v
}

// ZoneGeometry pairs a zone with its serialized boundary shape. The geometry
// is carried as opaque JSON; no geospatial computation happens here.
type ZoneGeometry struct {
	LocationID   int64
	GeometryJSON string
}

type geoFeature struct {
	Properties map[string]json.RawMessage `json:"properties"`
	Geometry   json.RawMessage            `json:"geometry"`
}

type geoCollection struct {
	Features []geoFeature `json:"features"`
}

// ReadZoneGeoJSON parses a GeoJSON FeatureCollection of zone boundaries.
// Features without a LocationID property are skipped.
func ReadZoneGeoJSON(path string) ([]ZoneGeometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: open zone geojson: %w", err)
	}
	var gc geoCollection
	if err := json.Unmarshal(data, &gc); err != nil {
		return nil, fmt.Errorf("source: parse zone geojson: %w", err)
	}
	var out []ZoneGeometry
	for _, feat := range gc.Features {
		raw, ok := feat.Properties["LocationID"]
		if !ok || feat.Geometry == nil {
			continue
		}
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			// Some exports quote the id.
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				continue
			}
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				continue
			}
			id = n
		}
		out = append(out, ZoneGeometry{LocationID: id, GeometryJSON: string(feat.Geometry)})
	}
	return out, nil
}
