package handlers

import (
	"net/http"
	"time"

	"vesta/internal/broker"
	"vesta/internal/config"
)

var started = time.Now()

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	UptimeSec int    `json:"uptime_sec"`
	Clients   int    `json:"clients"`
}

// StatsResponse is the body of GET /stats
type StatsResponse struct {
	broker.Stats
	Destinations map[string]broker.Destination `json:"destinations"`
}

// Health returns system health status
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	stats := a.hub.GetStats()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   config.Version,
		UptimeSec: int(time.Since(started).Seconds()),
		Clients:   stats.TotalClients,
	})
}

// Stats returns broker statistics per destination
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{Stats: a.hub.GetStats(), Destinations: a.hub.Destinations()})
}
