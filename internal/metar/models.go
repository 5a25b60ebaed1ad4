package metar

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"
)

// FlightCategory is the FAA ceiling/visibility classification of a report
type FlightCategory int

const (
	CategoryUnknown FlightCategory = iota
	CategoryVFR
	CategoryMVFR
	CategoryIFR
	CategoryLIFR
)

// ParseFlightCategory maps the API's category string onto the enum.
// Anything unrecognized (including empty) is Unknown.
func ParseFlightCategory(s string) FlightCategory {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VFR":
		return CategoryVFR
	case "MVFR":
		return CategoryMVFR
	case "IFR":
		return CategoryIFR
	case "LIFR":
		return CategoryLIFR
	default:
		return CategoryUnknown
	}
}

// String returns the category abbreviation
func (fc FlightCategory) String() string {
	switch fc {
	case CategoryVFR:
		return "VFR"
	case CategoryMVFR:
		return "MVFR"
	case CategoryIFR:
		return "IFR"
	case CategoryLIFR:
		return "LIFR"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders the category as its abbreviation
func (fc FlightCategory) MarshalJSON() ([]byte, error) {
	return []byte(`"` + fc.String() + `"`), nil
}

// Condition is the normalized per-station weather snapshot
type Condition struct {
	Station     string         `json:"station"`
	Category    FlightCategory `json:"flight_category"`
	WindSpeedKt int            `json:"wind_speed_kt"`
	WindGustKt  int            `json:"wind_gust_kt"`
	Lightning   bool           `json:"lightning"`
	ObservedAt  time.Time      `json:"observed_at"`
}

// MaxWindKt returns the greater of sustained and gust speed
func (c Condition) MaxWindKt() int {
	if c.WindGustKt > c.WindSpeedKt {
		return c.WindGustKt
	}
	return c.WindSpeedKt
}

// Latest reduces a record list to at most one Condition per station,
// keeping the record with the newest observation timestamp.
func Latest(conditions []Condition) map[string]Condition {
	latest := make(map[string]Condition, len(conditions))
	for _, c := range conditions {
		if c.Station == "" {
			continue
		}
		prev, ok := latest[c.Station]
		if !ok || c.ObservedAt.After(prev.ObservedAt) {
			latest[c.Station] = c
		}
	}
	return latest
}

// Signature derives an order-independent digest over every
// (station, category, wind, gust, lightning, observation time) tuple.
// Two fetches with equal signatures carry no meaningful change.
func Signature(conditions map[string]Condition) string {
	lines := make([]string, 0, len(conditions))
	for id, c := range conditions {
		lines = append(lines, fmt.Sprintf("%s|%s|%d|%d|%t|%d",
			id, c.Category, c.WindSpeedKt, c.WindGustKt, c.Lightning, c.ObservedAt.Unix()))
	}
	sort.Strings(lines)

	h := fnv.New64a()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
