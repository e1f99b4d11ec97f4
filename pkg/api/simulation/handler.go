// Package simulation exposes the simulation operations over HTTP: settings
// CRUD, plain and Monte Carlo runs, and runs against an uploaded DSM file.
package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"cvsim/pkg/core/dsm"
	"cvsim/pkg/core/process"
	"cvsim/pkg/core/sim"
	"cvsim/pkg/core/store"
	"cvsim/pkg/metrics"
)

// maxDSMUpload bounds the in-memory size of an uploaded DSM file.
const maxDSMUpload = 4 << 20

// SettingsStore is the persistence surface the handlers need for the
// per-project settings record.
type SettingsStore interface {
	Get(ctx context.Context, projectID int) (sim.Settings, error)
	Save(ctx context.Context, projectID int, set sim.Settings) error
}

// Runner executes simulations for a set of (vcs, design) pairs.
type Runner interface {
	Run(ctx context.Context, set sim.Settings, vcsIDs, designIDs []int, ext *dsm.Matrix, normalized bool) ([]sim.PairResult, error)
}

// Handler carries the handler dependencies.
type Handler struct {
	settings SettingsStore
	runner   Runner
	log      zerolog.Logger
}

// NewHandler wires the simulation endpoints.
func NewHandler(settings SettingsStore, runner Runner, log zerolog.Logger) *Handler {
	return &Handler{settings: settings, runner: runner, log: log}
}

// Register mounts the simulation routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/cvs/project/{project_id}/simulation/settings", h.HandleGetSettings).Methods(http.MethodGet)
	r.HandleFunc("/api/cvs/project/{project_id}/simulation/settings", h.HandleEditSettings).Methods(http.MethodPut)
	r.HandleFunc("/api/cvs/project/{project_id}/simulation/run", h.HandleRun).Methods(http.MethodPost)
	r.HandleFunc("/api/cvs/project/{project_id}/simulation/run-csv", h.HandleRunCSV).Methods(http.MethodPost)
	r.HandleFunc("/api/cvs/project/{project_id}/simulation/run-xlsx", h.HandleRunXLSX).Methods(http.MethodPost)
	r.HandleFunc("/api/cvs/project/{project_id}/simulation/run-monte-carlo", h.HandleRunMonteCarlo).Methods(http.MethodPost)
}

// RunRequest is the JSON body of every run endpoint.
type RunRequest struct {
	VcsIDs        []int `json:"vcs_ids"`
	DesignIDs     []int `json:"design_ids"`
	NormalizedNPV bool  `json:"normalized_npv"`
	Runs          int   `json:"runs,omitempty"`
}

// HandleGetSettings returns the stored settings of a project.
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	set, err := h.settings.Get(r.Context(), projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, set)
}

// HandleEditSettings validates and upserts the settings of a project.
func (h *Handler) HandleEditSettings(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var set sim.Settings
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.settings.Save(r.Context(), projectID, set); err != nil {
		h.writeError(w, err)
		return
	}
	metrics.SettingsWrites.Inc()
	h.log.Info().Int("project_id", projectID).Msg("simulation settings saved")
	w.WriteHeader(http.StatusNoContent)
}

// HandleRun simulates with the default sequential DSM.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	h.runWithMatrix(w, r, nil, false)
}

// HandleRunCSV simulates against a DSM uploaded as CSV.
func (h *Handler) HandleRunCSV(w http.ResponseWriter, r *http.Request) {
	h.runWithUpload(w, r, dsm.LoadCSV)
}

// HandleRunXLSX simulates against a DSM uploaded as an Excel workbook.
func (h *Handler) HandleRunXLSX(w http.ResponseWriter, r *http.Request) {
	h.runWithUpload(w, r, dsm.LoadXLSX)
}

// HandleRunMonteCarlo runs the Monte Carlo batch for every pair.
func (h *Handler) HandleRunMonteCarlo(w http.ResponseWriter, r *http.Request) {
	h.runWithMatrix(w, r, nil, true)
}

func (h *Handler) runWithUpload(w http.ResponseWriter, r *http.Request, load func(io.Reader) (*dsm.Matrix, error)) {
	if err := r.ParseMultipartForm(maxDSMUpload); err != nil {
		http.Error(w, fmt.Sprintf("malformed multipart request: %v", err), http.StatusBadRequest)
		return
	}

	// a missing or undecodable DSM falls back to the sequential chain;
	// a decodable but invalid table is a caller error
	var matrix *dsm.Matrix
	file, _, err := r.FormFile("dsm")
	if err != nil {
		h.log.Warn().Err(err).Msg("dsm file missing from upload, using sequential chain")
	} else {
		defer file.Close()
		matrix, err = load(file)
		if errors.Is(err, dsm.ErrUnreadable) {
			h.log.Warn().Err(err).Msg("dsm file unreadable, using sequential chain")
			matrix = nil
		} else if err != nil {
			http.Error(w, fmt.Sprintf("invalid dsm table: %v", err), http.StatusBadRequest)
			return
		}
	}

	h.runWithMatrix(w, r, matrix, false)
}

func (h *Handler) runWithMatrix(w http.ResponseWriter, r *http.Request, matrix *dsm.Matrix, monteCarlo bool) {
	projectID, err := pathID(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := decodeRunRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	set, err := h.settings.Get(r.Context(), projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if monteCarlo {
		set.MonteCarlo = true
		if req.Runs > 0 {
			set.Runs = req.Runs
		}
	}

	start := time.Now()
	results, err := h.runner.Run(r.Context(), set, req.VcsIDs, req.DesignIDs, matrix, req.NormalizedNPV)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveRun("error", elapsed.Seconds())
		h.writeError(w, err)
		return
	}
	metrics.ObserveRun("ok", elapsed.Seconds())

	h.log.Info().
		Int("project_id", projectID).
		Int("pairs", len(results)).
		Bool("monte_carlo", monteCarlo).
		Dur("duration", elapsed).
		Msg("simulation completed")
	writeJSON(w, results)
}

// decodeRunRequest reads the request body; for multipart uploads the JSON
// travels in the "request" form field next to the file part.
func decodeRunRequest(r *http.Request) (RunRequest, error) {
	var req RunRequest
	if r.MultipartForm != nil {
		body := r.FormValue("request")
		if body == "" {
			return req, fmt.Errorf("request form field missing from upload")
		}
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return req, fmt.Errorf("malformed request field: %w", err)
		}
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("malformed request body: %w", err)
	}
	return req, nil
}

// writeError maps domain errors onto HTTP statuses: bad input gets 400,
// a missing settings record 404, everything unexpected 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var rateErr *process.RateOrderError
	var timeErr *process.NegativeTimeError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrSettingsNotFound):
		status = http.StatusNotFound
	case errors.As(err, &rateErr),
		errors.As(err, &timeErr),
		errors.Is(err, process.ErrProcessNotFound),
		errors.Is(err, sim.ErrInvalidFlowSettings),
		errors.Is(err, sim.ErrInvalidTimeSpan),
		errors.Is(err, sim.ErrNoDesigns):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("simulation request failed")
	} else {
		h.log.Warn().Err(err).Msg("simulation request rejected")
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request, name string) (int, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}
