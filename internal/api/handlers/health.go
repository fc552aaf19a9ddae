package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the liveness response.
type HealthStatus struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// ReadyStatus is the readiness response.
type ReadyStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Timestamp  string            `json:"timestamp"`
}

// HealthCheck returns a handler that reports basic service health. It answers
// 200 whenever the process is up.
func HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, http.StatusOK, HealthStatus{
			Status:    "healthy",
			Service:   "paperchat",
			Version:   "0.1.0",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadyCheck returns a handler that probes the named dependencies. Any failing
// probe turns the response into 503.
func ReadyCheck(components map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := ReadyStatus{
			Status:     "ready",
			Components: make(map[string]string),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}

		allReady := true
		for name, checker := range components {
			if checker == nil {
				status.Components[name] = "not configured"
				continue
			}
			if err := checker.Health(ctx); err != nil {
				status.Components[name] = "unavailable: " + err.Error()
				allReady = false
				continue
			}
			status.Components[name] = "ready"
		}

		if !allReady {
			status.Status = "not ready"
			RespondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		RespondJSON(w, http.StatusOK, status)
	}
}
