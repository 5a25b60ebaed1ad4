package metar

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// The API serves the same records under several shapes and field spellings
// depending on endpoint version. Everything is decoded into loose maps at
// this boundary and immediately narrowed to fixed-shape Conditions; nothing
// loosely typed leaves this file.

// featureCollection is the GeoJSON shape of the METAR endpoint
type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

// dataEnvelope is the {"data": [...]} shape
type dataEnvelope struct {
	Data  []map[string]any `json:"data"`
	Metar []map[string]any `json:"metar"`
}

// ParseRecords extracts raw report records from an API response body.
// Malformed or empty bodies degrade to an empty list, never an error.
func ParseRecords(raw []byte) []map[string]any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil
	}

	var fc featureCollection
	if err := json.Unmarshal(raw, &fc); err == nil && fc.Type == "FeatureCollection" {
		records := make([]map[string]any, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Properties != nil {
				records = append(records, f.Properties)
			}
		}
		return records
	}

	var env dataEnvelope
	if err := json.Unmarshal(raw, &env); err == nil {
		if len(env.Data) > 0 {
			return env.Data
		}
		if len(env.Metar) > 0 {
			return env.Metar
		}
	}

	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	return nil
}

// ConditionFromRecord narrows one raw record to a Condition. Missing or
// unparseable fields default (zero wind, Unknown category, no lightning)
// rather than rejecting the record. Returns false when no station
// identifier is present, the one field nothing can substitute for.
func ConditionFromRecord(record map[string]any, now time.Time) (Condition, bool) {
	station := strings.ToUpper(strings.TrimSpace(
		stringField(record, "icaoId", "station", "station_id")))
	if station == "" {
		return Condition{}, false
	}

	raw := stringField(record, "rawOb", "raw_text")

	return Condition{
		Station:     station,
		Category:    ParseFlightCategory(stringField(record, "fltCat", "flight_category")),
		WindSpeedKt: intField(record, "wspd", "windSpeedKt"),
		WindGustKt:  intField(record, "wgst", "gust", "gustKt", "windGustKt", "wind_gust_kt", "gust_kts"),
		Lightning:   LightningReported(raw),
		ObservedAt:  observationTime(record, now),
	}, true
}

// LightningReported applies the report-text heuristic: a lightning or
// thunderstorm token in the body before the remarks section, unless the
// report carries an explicit "no thunderstorm" (TSNO) token.
func LightningReported(raw string) bool {
	if raw == "" {
		return false
	}
	body := raw
	if i := strings.Index(raw, " RMK"); i >= 0 {
		body = raw[:i]
	}
	hasToken := strings.Contains(body, "LTG") || strings.Contains(body, " TS")
	return hasToken && !strings.Contains(raw, " TSNO")
}

// observationTime prefers the ISO-8601 reportTime, falls back to the
// epoch-seconds obsTime, and finally to the fetch time itself.
func observationTime(record map[string]any, now time.Time) time.Time {
	if s := stringField(record, "reportTime"); s != "" {
		s = strings.Replace(s, "Z", "+00:00", 1)
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
		// The API sometimes omits the T separator
		if t, err := time.Parse("2006-01-02 15:04:05-07:00", s); err == nil {
			return t.UTC()
		}
	}
	if epoch := intField(record, "obsTime"); epoch > 0 {
		return time.Unix(int64(epoch), 0).UTC()
	}
	return now.UTC()
}

// stringField returns the first of the aliased keys holding a string value
func stringField(record map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := record[key]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// intField returns the first of the aliased keys holding a usable numeric
// value, rounded and never negative. Defaults to 0.
func intField(record map[string]any, keys ...string) int {
	for _, key := range keys {
		v, ok := record[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return clampNonNegative(int(math.Round(n)))
		case string:
			s := strings.TrimSpace(strings.TrimPrefix(n, "+"))
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return clampNonNegative(int(math.Round(f)))
			}
		case int:
			return clampNonNegative(n)
		}
	}
	return 0
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
