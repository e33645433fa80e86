package v1

import (
	"net/http"

	"github.com/gre/ledger-api-countervalue/internal/core/port"
)

type HealthHandler struct {
	healthService port.HealthService
	version       string
}

func NewHealthHandler(healthService port.HealthService, version string) *HealthHandler {
	return &HealthHandler{healthService: healthService, version: version}
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// GetHealth handles GET /_health.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.healthService.Status(r.Context()); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "store failure: "+err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, healthResponse{
		Status:  "OK",
		Service: "database",
		Version: h.version,
	})
}

// GetHealthNoop handles GET /_health/noop.
func (h *HealthHandler) GetHealthNoop(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// GetHealthDetail handles GET /_health/detail. A KO service yields 500,
// an unreachable store 503.
func (h *HealthHandler) GetHealthDetail(w http.ResponseWriter, r *http.Request) {
	statuses, allOK, err := h.healthService.Detail(r.Context())
	if err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "store failure: "+err.Error())
		return
	}
	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusInternalServerError
	}
	writeJSONResponse(w, statusCode, statuses)
}
