package httpapi

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

type RunsHandler struct {
	DB *sql.DB
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

// List serves GET /runs?source_id=&limit=, newest first.
func (h RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	var sourceID int64
	if raw := r.URL.Query().Get("source_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			WriteError(w, r, http.StatusBadRequest, "bad_source_id", "source_id must be a positive integer")
			return
		}
		sourceID = id
	}
	runs, err := store.ListRuns(r.Context(), h.DB, sourceID, queryInt(r, "limit", 50))
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if runs == nil {
		runs = []domain.IngestionRun{}
	}
	WriteJSON(w, http.StatusOK, runs)
}

// Daily serves GET /stats/daily?days=.
func (h RunsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	rows, err := store.ListDailyStats(r.Context(), h.DB, queryInt(r, "days", 30))
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.DailyStats{}
	}
	WriteJSON(w, http.StatusOK, rows)
}
