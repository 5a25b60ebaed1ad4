package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/salvatore0626/PiZeroMetarMap/internal/config"
	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
	"github.com/salvatore0626/PiZeroMetarMap/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	service *metar.Service
	config  *config.Config
	started time.Time
	logger  *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(service *metar.Service, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		config:  cfg,
		started: time.Now().UTC(),
		logger:  log.Named("api-handler"),
	}
}

// stationView is the per-station JSON shape returned by the conditions
// endpoint: the stored condition plus its LED assignment.
type stationView struct {
	metar.Condition
	LEDIndex int `json:"led_index"`
}

// GetConditions returns the current condition for every mapped station
func (h *Handler) GetConditions(w http.ResponseWriter, r *http.Request) {
	snapshot, generation := h.service.Store().Snapshot()

	stations := make([]stationView, 0, len(h.config.Stations.Mapping))
	for i, id := range h.config.Stations.Mapping {
		if id == "" {
			continue
		}
		view := stationView{LEDIndex: i}
		if cond, ok := snapshot[id]; ok {
			view.Condition = cond
		} else {
			view.Condition = metar.Condition{Station: id}
		}
		stations = append(stations, view)
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].LEDIndex < stations[j].LEDIndex
	})

	h.writeJSON(w, http.StatusOK, map[string]any{
		"generation": generation,
		"stations":   stations,
	})
}

// GetStatus returns fetch scheduling and store health
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.service.Store().Status()

	h.writeJSON(w, http.StatusOK, map[string]any{
		"store":          status,
		"station_count":  len(h.config.StationIDs()),
		"led_count":      h.config.LED.Count,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// GetStations returns the LED-to-station mapping
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		LEDIndex int    `json:"led_index"`
		Station  string `json:"station,omitempty"`
	}

	mapping := make([]entry, 0, len(h.config.Stations.Mapping))
	for i, id := range h.config.Stations.Mapping {
		mapping = append(mapping, entry{LEDIndex: i, Station: id})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"mapping": mapping})
}

// TriggerRefresh requests a fetch outside the regular schedule. Returns
// 202 when a fetch was started, 409 when one is already in flight.
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if h.service.RefreshNow() {
		h.logger.Info("Manual refresh triggered", logger.String("remote_addr", r.RemoteAddr))
		h.writeJSON(w, http.StatusAccepted, map[string]any{"status": "refresh started"})
		return
	}
	h.writeJSON(w, http.StatusConflict, map[string]any{"status": "fetch already in flight"})
}

// Healthz is the liveness probe
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}
