package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthResponse is the payload of GET /api/health
type HealthResponse struct {
	Status        string  `json:"status"`
	Database      string  `json:"database"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// handleHealth handles GET /api/health. A failing database answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Database:      "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}

	// Host stats are best effort
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryPercent = vm.UsedPercent
	}

	status := http.StatusOK
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("Database health check failed")
			resp.Status = "unhealthy"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	s.writeData(w, status, resp)
}
