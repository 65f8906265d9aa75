package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/config"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/scrape"
	"github.com/shalom-dev-bot/astremina/internal/scrape/mailbox"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

type SourcesHandler struct {
	DB          *sql.DB
	Runner      Runner
	Clock       clock.Clock
	SourcesPath string
	SetPassword func(account, password string) error
}

type sourceView struct {
	ID         int64                   `json:"id"`
	Name       string                  `json:"name"`
	Endpoint   string                  `json:"endpoint"`
	Family     domain.Family           `json:"family"`
	Extraction domain.ExtractionConfig `json:"extraction,omitempty"`
	Active     bool                    `json:"active"`
	Interval   string                  `json:"interval,omitempty"`
	LastRunAt  *time.Time              `json:"last_run_at,omitempty"`
	Running    bool                    `json:"running"`
}

func viewOf(src domain.Source, running map[int64]bool) sourceView {
	v := sourceView{
		ID: src.ID, Name: src.Name, Endpoint: src.Endpoint, Family: src.Family,
		Extraction: src.Extraction, Active: src.Active, LastRunAt: src.LastRunAt,
		Running: running[src.ID],
	}
	if src.Interval > 0 {
		v.Interval = src.Interval.String()
	}
	return v
}

func (h SourcesHandler) running() map[int64]bool {
	out := map[int64]bool{}
	if h.Runner == nil {
		return out
	}
	for _, id := range h.Runner.InFlight() {
		out[id] = true
	}
	return out
}

func sourceID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	srcs, err := store.ListSources(r.Context(), h.DB)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	running := h.running()
	out := make([]sourceView, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, viewOf(s, running))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h SourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceID(r)
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "bad_id", "source id must be a positive integer")
		return
	}
	src, err := store.GetSource(r.Context(), h.DB, id)
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(src, h.running()))
}

// Run is the manual trigger: it queues one run and answers right away.
func (h SourcesHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceID(r)
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "bad_id", "source id must be a positive integer")
		return
	}
	if err := h.Runner.Enqueue(r.Context(), id); err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true, "source_id": id, "status": "queued"})
}

func (h SourcesHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceID(r)
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "bad_id", "source id must be a positive integer")
		return
	}
	if err := h.Runner.Cancel(id); err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true, "source_id": id, "status": "canceling"})
}

// Export returns the registry in sources.yml shape.
func (h SourcesHandler) Export(w http.ResponseWriter, r *http.Request) {
	srcs, err := store.ListSources(r.Context(), h.DB)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	sf := config.SourcesFile{Sources: make([]config.SourceSeed, 0, len(srcs))}
	for _, s := range srcs {
		sf.Sources = append(sf.Sources, config.SeedFromSource(s))
	}
	WriteJSON(w, http.StatusOK, sf)
}

// Replace validates a full sources document, upserts every source into the
// registry and then saves the document next to the config. Sources missing
// from the document are left as they are; deactivate them with active: false.
func (h SourcesHandler) Replace(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var incoming config.SourcesFile
	if err := dec.Decode(&incoming); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := config.ValidateSources(incoming); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_sources", err.Error())
		return
	}

	srcs := make([]domain.Source, 0, len(incoming.Sources))
	for _, seed := range incoming.Sources {
		src, err := seed.ToDomain()
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_sources", err.Error())
			return
		}
		srcs = append(srcs, src)
	}

	now := h.Clock.Now()
	err := store.WithTx(r.Context(), h.DB, func(tx *sql.Tx) error {
		for _, src := range srcs {
			if _, err := store.UpsertSource(r.Context(), tx, src, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	// The file is only written once the registry holds the same sources.
	if h.SourcesPath != "" {
		if err := config.SaveSourcesAtomic(h.SourcesPath, incoming); err != nil {
			writeInternal(w, r, err)
			return
		}
	}
	h.List(w, r)
}

type passwordReq struct {
	Password string `json:"password"`
}

// SetMailboxPassword stores the IMAP password of a mailbox source in the
// OS keychain under the account the adapter reads it from.
func (h SourcesHandler) SetMailboxPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceID(r)
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "bad_id", "source id must be a positive integer")
		return
	}
	src, err := store.GetSource(r.Context(), h.DB, id)
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	if src.Family != domain.FamilyMailbox {
		WriteError(w, r, http.StatusBadRequest, "not_mailbox", "source is not a mailbox source")
		return
	}

	var req passwordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	target, err := mailbox.TargetFor(src, scrape.ConfigFor(src))
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "bad_endpoint", err.Error())
		return
	}
	if err := h.SetPassword(target.Account(), req.Password); err != nil {
		WriteError(w, r, http.StatusBadRequest, "keyring", "failed to store password: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
