package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/datafeed/internal/clients/finnhub"
	"github.com/aristath/datafeed/internal/marketdata"
	"github.com/aristath/datafeed/internal/version"
)

// backupRunTimeout bounds a manually triggered backup cycle.
const backupRunTimeout = 30 * time.Minute

// statusResponse is the source-health snapshot served by /api/status.
type statusResponse struct {
	marketdata.Diagnostics
	Stream *finnhub.StreamStatus `json:"stream,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "datafeed",
		"version": version.Version,
	})
}

// handleStatus serves orchestrator diagnostics plus live-stream health.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Diagnostics: s.orch.Diagnostics()}
	if s.stream != nil {
		streamStatus := s.stream.Status()
		resp.Stream = &streamStatus
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleBreakerReset force-closes one source's circuit breaker.
func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	if !s.breakers.Reset(source) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown source: " + source,
		})
		return
	}

	s.log.Info().Str("source", source).Msg("Breaker reset via API")
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "reset",
		"source": source,
	})
}

// handleBackupList lists stored backup archives, newest first.
func (s *Server) handleBackupList(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "backups are not configured",
		})
		return
	}

	backups, err := s.backups.ListBackups(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list backups")
		s.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "failed to list backups",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(backups),
		"backups": backups,
	})
}

// handleBackupRun triggers a backup cycle in the background. The upload can
// take minutes, so the request only confirms the start.
func (s *Server) handleBackupRun(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "backups are not configured",
		})
		return
	}

	s.log.Info().Msg("Manual backup triggered")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backupRunTimeout)
		defer cancel()

		if err := s.backups.CreateAndUploadBackup(ctx); err != nil {
			s.log.Error().Err(err).Msg("Manual backup failed")
			return
		}
		if err := s.backups.RotateOldBackups(ctx); err != nil {
			s.log.Error().Err(err).Msg("Backup rotation failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
