package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bartonmalow/suna/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Cleanup *service.CleanupService
	Expiry  *service.ExpirySweeper
	Stop    *service.StopService
}

type deleteSandboxesRequest struct {
	SandboxIDs []string `json:"sandbox_ids"`
}

type deleteSandboxesResponse struct {
	Results []service.DeleteResult `json:"results"`
	Deleted int                    `json:"deleted"`
}

// DeleteSandboxes removes an explicit list of sandboxes, reporting the
// per-id outcome.
func (h *Handlers) DeleteSandboxes(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[deleteSandboxesRequest](w, r)
	if !ok {
		return
	}
	if len(req.SandboxIDs) == 0 {
		writeError(w, http.StatusBadRequest, "sandbox_ids is required")
		return
	}

	results := h.Cleanup.DeleteSandboxes(r.Context(), req.SandboxIDs)
	deleted := 0
	for _, res := range results {
		if res.Success {
			deleted++
		}
	}
	writeJSON(w, http.StatusOK, deleteSandboxesResponse{Results: results, Deleted: deleted})
}

type cleanupOldRequest struct {
	MaxAgeHours float64 `json:"max_age_hours"`
}

type cleanupOldResponse struct {
	Deleted     int      `json:"deleted"`
	SandboxIDs  []string `json:"sandbox_ids"`
	MaxAgeHours float64  `json:"max_age_hours"`
}

// CleanupOld deletes every sandbox older than the requested age. Omitting
// the body (or the field) uses the default threshold.
func (h *Handlers) CleanupOld(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[cleanupOldRequest](w, r)
	if !ok {
		return
	}
	if req.MaxAgeHours < 0 {
		writeError(w, http.StatusBadRequest, "max_age_hours must not be negative")
		return
	}

	maxAge := service.DefaultMaxSandboxAge
	if req.MaxAgeHours > 0 {
		maxAge = time.Duration(req.MaxAgeHours * float64(time.Hour))
	}

	deleted, err := h.Expiry.Sweep(r.Context(), maxAge)
	if err != nil {
		writeDomainError(w, err, "expiry sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, cleanupOldResponse{
		Deleted:     len(deleted),
		SandboxIDs:  deleted,
		MaxAgeHours: maxAge.Hours(),
	})
}

type fullCleanupResponse struct {
	Success    bool           `json:"success"`
	Statistics map[string]int `json:"statistics"`
	Summary    string         `json:"summary"`
	Error      string         `json:"error,omitempty"`
}

// FullCleanup runs every cleanup category and reports the per-category
// counts. Partial progress is reported even when a category failed.
func (h *Handlers) FullCleanup(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Cleanup.FullCleanup(r.Context())

	total := 0
	for _, n := range stats {
		total += n
	}
	resp := fullCleanupResponse{
		Success:    err == nil,
		Statistics: stats,
		Summary:    fmt.Sprintf("cleaned up %d items", total),
	}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CleanupStats reports provider and record-store sandbox counts plus the
// age histogram.
func (h *Handlers) CleanupStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Cleanup.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type stopRunRequest struct {
	Error string `json:"error"`
}

type stopRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// StopRun halts an agent run. A non-empty error in the body records the
// run as failed instead of stopped.
func (h *Handlers) StopRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	req, ok := readJSON[stopRunRequest](w, r)
	if !ok {
		return
	}

	status, err := h.Stop.Stop(r.Context(), runID, req.Error)
	if err != nil {
		writeDomainError(w, err, "agent run not found")
		return
	}
	writeJSON(w, http.StatusOK, stopRunResponse{RunID: runID, Status: string(status)})
}
