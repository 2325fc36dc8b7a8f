package web

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Handler serves the results API endpoints over the store database.
type Handler struct {
	DB *sql.DB
}

// Health reports server liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runSummary struct {
	RunID        string `json:"run_id"`
	StartedAt    string `json:"started_at"`
	RecordsA     int    `json:"records_a"`
	RecordsB     int    `json:"records_b"`
	ExactMatches int    `json:"exact_matches"`
	Candidates   int    `json:"candidates"`
	EMIterations int    `json:"em_iterations"`
	EMConverged  bool   `json:"em_converged"`
	DurationMS   int64  `json:"duration_ms"`
}

// ListRuns returns recorded runs, most recent first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query(`
		SELECT run_id, started_at, records_a, records_b, exact_matches,
		       candidates, em_iterations, em_converged, duration_ms
		FROM run
		ORDER BY started_at DESC
		LIMIT 100
	`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer rows.Close()

	runs := []runSummary{}
	for rows.Next() {
		var s runSummary
		var converged int
		if err := rows.Scan(&s.RunID, &s.StartedAt, &s.RecordsA, &s.RecordsB,
			&s.ExactMatches, &s.Candidates, &s.EMIterations, &converged, &s.DurationMS); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.EMConverged = converged != 0
		runs = append(runs, s)
	}

	writeJSON(w, http.StatusOK, runs)
}

// RunSummary returns one run's audit record.
func (h *Handler) RunSummary(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	var s runSummary
	var converged int
	err := h.DB.QueryRow(`
		SELECT run_id, started_at, records_a, records_b, exact_matches,
		       candidates, em_iterations, em_converged, duration_ms
		FROM run
		WHERE run_id = ?
	`, runID).Scan(&s.RunID, &s.StartedAt, &s.RecordsA, &s.RecordsB,
		&s.ExactMatches, &s.Candidates, &s.EMIterations, &converged, &s.DurationMS)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.EMConverged = converged != 0

	writeJSON(w, http.StatusOK, s)
}

type scoredPair struct {
	IDA       int64   `json:"id_a"`
	IDB       int64   `json:"id_b"`
	Posterior float64 `json:"posterior"`
}

// Posteriors returns a run's posterior table, highest first. Supports
// ?min= to filter by posterior and ?limit= to cap the result size.
func (h *Handler) Posteriors(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	min := 0.0
	if v := r.URL.Query().Get("min"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad min parameter"})
			return
		}
		min = parsed
	}

	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad limit parameter"})
			return
		}
		limit = parsed
	}

	rows, err := h.DB.Query(`
		SELECT id_a, id_b, posterior
		FROM pair_posterior
		WHERE run_id = ? AND posterior >= ?
		ORDER BY posterior DESC, id_a, id_b
		LIMIT ?
	`, runID, min, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer rows.Close()

	pairs := []scoredPair{}
	for rows.Next() {
		var p scoredPair
		if err := rows.Scan(&p.IDA, &p.IDB, &p.Posterior); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		pairs = append(pairs, p)
	}

	writeJSON(w, http.StatusOK, pairs)
}

// Thresholds returns a run's threshold-count table.
func (h *Handler) Thresholds(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	rows, err := h.DB.Query(`
		SELECT threshold, matches
		FROM threshold_count
		WHERE run_id = ?
		ORDER BY threshold
	`, runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer rows.Close()

	type thresholdCount struct {
		Threshold float64 `json:"threshold"`
		Matches   int     `json:"matches"`
	}

	counts := []thresholdCount{}
	for rows.Next() {
		var tc thresholdCount
		if err := rows.Scan(&tc.Threshold, &tc.Matches); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		counts = append(counts, tc)
	}

	writeJSON(w, http.StatusOK, counts)
}

// Bins returns a run's posterior-bin diagnostics. Undefined means are
// null in the JSON, matching the NA sentinel in the CSV output.
func (h *Handler) Bins(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	rows, err := h.DB.Query(`
		SELECT bin, pairs, mean_firstname_distance, mean_lastname_distance, mean_birthyear_distance
		FROM posterior_bin
		WHERE run_id = ?
		ORDER BY bin
	`, runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer rows.Close()

	type binDiagnostic struct {
		Bin               string   `json:"bin"`
		Pairs             int      `json:"pairs"`
		MeanFirstNameDist *float64 `json:"mean_firstname_distance"`
		MeanLastNameDist  *float64 `json:"mean_lastname_distance"`
		MeanBirthYearDist *float64 `json:"mean_birthyear_distance"`
	}

	bins := []binDiagnostic{}
	for rows.Next() {
		var b binDiagnostic
		if err := rows.Scan(&b.Bin, &b.Pairs, &b.MeanFirstNameDist, &b.MeanLastNameDist, &b.MeanBirthYearDist); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		bins = append(bins, b)
	}

	writeJSON(w, http.StatusOK, bins)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
