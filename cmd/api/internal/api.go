package internal

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	datafeed "github.com/fazecat/optionsmith/Internal/database"
)

// API serves read-only run history: summaries, selections with their
// justification records, and per-stage forensic snapshots. It never exposes
// any way to act on a candidate.
type API struct {
	JWTManager *JWTManager
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleGenerateToken issues the bearer token the protected routes require.
// Credentials come from API_USERNAME/API_PASSWORD in the environment.
func (api *API) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	username := os.Getenv("API_USERNAME")
	password := os.Getenv("API_PASSWORD")
	if username == "" || password == "" {
		WriteError(w, http.StatusServiceUnavailable, "API credentials not configured")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username != username || req.Password != password {
		WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := api.JWTManager.GenerateToken(req.Username, req.Username, 24)
	if err != nil {
		log.Printf("Error generating token: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (api *API) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := int32(20)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = int32(parsed)
		}
	}

	runs, err := datafeed.ListRuns(r.Context(), limit)
	if err != nil {
		log.Printf("Error listing runs: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (api *API) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	runs, err := datafeed.ListRuns(r.Context(), 1)
	if err != nil {
		log.Printf("Error fetching latest run: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to fetch latest run")
		return
	}
	if len(runs) == 0 {
		WriteError(w, http.StatusNotFound, "No runs recorded yet")
		return
	}

	selections, err := datafeed.GetSelections(r.Context(), runs[0].ID)
	if err != nil {
		log.Printf("Error fetching selections: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to fetch selections")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run":        runs[0],
		"selections": selections,
	})
}

func (api *API) HandleGetSelections(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid run id")
		return
	}

	selections, err := datafeed.GetSelections(r.Context(), runID)
	if err != nil {
		log.Printf("Error fetching selections for run %d: %v", runID, err)
		WriteError(w, http.StatusInternalServerError, "Failed to fetch selections")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "selections": selections})
}

func (api *API) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid run id")
		return
	}
	stage := chi.URLParam(r, "stage")

	payload, err := datafeed.GetSnapshot(r.Context(), runID, stage)
	if err != nil {
		log.Printf("Error fetching %s snapshot for run %d: %v", stage, runID, err)
		WriteError(w, http.StatusInternalServerError, "Failed to fetch snapshot")
		return
	}
	if payload == nil {
		WriteError(w, http.StatusNotFound, "Snapshot not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
