package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/runway-sim/internal/config"
	"github.com/yegors/runway-sim/internal/runway"
	"github.com/yegors/runway-sim/internal/simulation"
	"github.com/yegors/runway-sim/internal/storage/sqlite"
	"github.com/yegors/runway-sim/internal/trials"
	"github.com/yegors/runway-sim/pkg/logger"
)

const defaultRunLimit = 20

// Handler contains the HTTP handlers for the API
type Handler struct {
	runner    *trials.Runner
	storage   *sqlite.RunStorage // nil when persistence is disabled
	config    *config.Config
	logger    *logger.Logger
	startedAt time.Time
}

// NewHandler creates a new handler
func NewHandler(runner *trials.Runner, storage *sqlite.RunStorage, config *config.Config, logger *logger.Logger) *Handler {
	return &Handler{
		runner:    runner,
		storage:   storage,
		config:    config,
		logger:    logger.Named("api-handler"),
		startedAt: time.Now(),
	}
}

// RunRequest overrides the configured batch for one API run. Omitted fields
// keep their configured values.
type RunRequest struct {
	Trials           *int     `json:"trials,omitempty"`
	Frames           *int     `json:"frames,omitempty"`
	RunwayCount      *int     `json:"runway_count,omitempty"`
	SpawnProbability *float64 `json:"spawn_probability,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
	IncludeResults   bool     `json:"include_results,omitempty"`
}

// apply merges the request into a batch configuration
func (req RunRequest) apply(base trials.Config) trials.Config {
	if req.Trials != nil {
		base.Trials = *req.Trials
	}
	if req.Frames != nil {
		base.Frames = *req.Frames
	}
	if req.RunwayCount != nil {
		base.RunwayCount = *req.RunwayCount
	}
	if req.SpawnProbability != nil {
		base.SpawnProbability = *req.SpawnProbability
	}
	if req.Seed != nil {
		base.Seed = *req.Seed
	}
	return base
}

// GetHealth reports liveness
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"storage": h.storage != nil,
	})
}

// GetConfig returns the simulation and trial defaults
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config)
}

// CreateRun runs a batch of trials synchronously and returns its summary
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	batchConfig := req.apply(h.config.Batch())
	if h.config.Server.MaxTrials > 0 && batchConfig.Trials > h.config.Server.MaxTrials {
		writeError(w, http.StatusBadRequest, "too many trials requested, limit is "+strconv.Itoa(h.config.Server.MaxTrials))
		return
	}
	if err := batchConfig.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.runner.Run(r.Context(), batchConfig)
	if err != nil {
		h.logger.WithError(err).Warn("Run failed")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if h.storage != nil {
		if err := h.storage.StoreBatch(r.Context(), batch); err != nil {
			h.logger.WithError(err).Error("Failed to store run", logger.String("id", batch.ID))
			writeError(w, http.StatusInternalServerError, "failed to store run")
			return
		}
	}

	if !req.IncludeResults {
		batch.Results = nil
	}
	writeJSON(w, http.StatusCreated, batch)
}

// GetRuns lists the most recent stored runs
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireStorage(w) {
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.storage.GetRecentRuns(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*sqlite.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(runs),
		"runs":  runs,
	})
}

// GetRun returns one stored run
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireStorage(w) {
		return
	}

	run, err := h.storage.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunTrials returns the per-trial results of a stored run, optionally
// filtered by group
func (h *Handler) GetRunTrials(w http.ResponseWriter, r *http.Request) {
	if !h.requireStorage(w) {
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.storage.GetRun(r.Context(), id); err != nil {
		h.storageError(w, err)
		return
	}
	results, err := h.storage.GetTrialResults(r.Context(), id)
	if err != nil {
		h.storageError(w, err)
		return
	}

	switch r.URL.Query().Get("group") {
	case "control":
		results = filterResults(results, true)
	case "test":
		results = filterResults(results, false)
	case "":
	default:
		writeError(w, http.StatusBadRequest, "group must be control or test")
		return
	}
	if results == nil {
		results = []simulation.Result{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  id,
		"count":   len(results),
		"results": results,
	})
}

// DeleteRun removes a stored run
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireStorage(w) {
		return
	}
	if err := h.storage.DeleteRun(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireStorage(w http.ResponseWriter) bool {
	if h.storage == nil {
		writeError(w, http.StatusNotImplemented, "run storage is disabled")
		return false
	}
	return true
}

func (h *Handler) storageError(w http.ResponseWriter, err error) {
	if errors.Is(err, sqlite.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.WithError(err).Error("Storage error")
	writeError(w, http.StatusInternalServerError, "storage error")
}

func filterResults(results []simulation.Result, control bool) []simulation.Result {
	var out []simulation.Result
	for _, r := range results {
		if r.Control == control {
			out = append(out, r)
		}
	}
	return out
}

// streamTrialConfig builds a single-trial configuration from query
// parameters over the configured defaults
func (h *Handler) streamTrialConfig(r *http.Request) (simulation.Config, int64, error) {
	q := r.URL.Query()
	base := h.config.Batch()
	cfg := simulation.Config{
		Frames:           base.Frames,
		SpawnProbability: base.SpawnProbability,
		Policy:           runway.Policy{RunwayCount: base.RunwayCount},
		Control:          true,
	}
	seed := base.Seed

	var err error
	if v := q.Get("frames"); v != "" {
		if cfg.Frames, err = strconv.Atoi(v); err != nil {
			return cfg, 0, errors.New("invalid frames")
		}
	}
	if v := q.Get("runways"); v != "" {
		if cfg.Policy.RunwayCount, err = strconv.Atoi(v); err != nil {
			return cfg, 0, errors.New("invalid runways")
		}
	}
	if v := q.Get("spawn_probability"); v != "" {
		if cfg.SpawnProbability, err = strconv.ParseFloat(v, 64); err != nil {
			return cfg, 0, errors.New("invalid spawn_probability")
		}
	}
	if v := q.Get("seed"); v != "" {
		if seed, err = strconv.ParseInt(v, 10, 64); err != nil {
			return cfg, 0, errors.New("invalid seed")
		}
	}
	if v := q.Get("reprioritization"); v != "" {
		if cfg.Policy.Reprioritization, err = strconv.ParseBool(v); err != nil {
			return cfg, 0, errors.New("invalid reprioritization")
		}
		cfg.Control = !cfg.Policy.Reprioritization
	}

	return cfg, seed, cfg.Validate()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
