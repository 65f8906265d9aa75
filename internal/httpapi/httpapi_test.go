package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/config"
	"github.com/shalom-dev-bot/astremina/internal/dispatch"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/events"
	"github.com/shalom-dev-bot/astremina/internal/ingest"
	"github.com/shalom-dev-bot/astremina/internal/store"
	"github.com/shalom-dev-bot/astremina/internal/store/storetest"
)

type fakeRunner struct {
	mu       sync.Mutex
	enqueued []int64
	errs     map[int64]error
	running  map[int64]bool
}

func (f *fakeRunner) Enqueue(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return err
	}
	f.enqueued = append(f.enqueued, id)
	return nil
}

func (f *fakeRunner) Cancel(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[id] {
		return fmt.Errorf("source %d: %w", id, ingest.ErrNotRunning)
	}
	return nil
}

func (f *fakeRunner) InFlight() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for id := range f.running {
		out = append(out, id)
	}
	return out
}

func do(t *testing.T, h http.Handler, method, path, body string, local bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if local {
		req.RemoteAddr = "127.0.0.1:50000"
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error.Code
}

func TestRunTriggerStatusCodes(t *testing.T) {
	db := storetest.New(t)
	src := storetest.Source(t, db, "jumia", domain.FamilyJumia, "https://jumia.test")

	runner := &fakeRunner{
		errs: map[int64]error{
			404: fmt.Errorf("source 404: %w", store.ErrNotFound),
			409: fmt.Errorf("source 409: %w", ingest.ErrSourceInactive),
			410: fmt.Errorf("source 410: %w", dispatch.ErrAlreadyRunning),
			503: fmt.Errorf("ingest: %w", dispatch.ErrQueueFull),
		},
	}
	h := NewRouter(Deps{DB: db, Runner: runner})

	rec := do(t, h, http.MethodPost, fmt.Sprintf("/sources/%d/run", src.ID), "", false)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []int64{src.ID}, runner.enqueued)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	cases := map[string]int{
		"/sources/404/run": http.StatusNotFound,
		"/sources/409/run": http.StatusConflict,
		"/sources/410/run": http.StatusConflict,
		"/sources/503/run": http.StatusServiceUnavailable,
		"/sources/abc/run": http.StatusBadRequest,
	}
	for path, want := range cases {
		rec := do(t, h, http.MethodPost, path, "", false)
		assert.Equal(t, want, rec.Code, path)
	}
	assert.Equal(t, "already_running", errorCode(t, do(t, h, http.MethodPost, "/sources/410/run", "", false)))
}

func TestCancel(t *testing.T) {
	runner := &fakeRunner{running: map[int64]bool{7: true}}
	h := NewRouter(Deps{DB: storetest.New(t), Runner: runner})

	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/sources/7/cancel", "", false).Code)
	rec := do(t, h, http.MethodPost, "/sources/8/cancel", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_running", errorCode(t, rec))
}

func TestListSourcesAndRuns(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "expat", domain.FamilyExpat, "https://expat.test")
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertRun(ctx, db, domain.IngestionRun{ID: "01A", SourceID: src.ID, StartedAt: now, Status: domain.RunRunning}))

	h := NewRouter(Deps{DB: db, Runner: &fakeRunner{running: map[int64]bool{src.ID: true}}})

	rec := do(t, h, http.MethodGet, "/sources", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []sourceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "expat", got[0].Name)
	assert.True(t, got[0].Running)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/runs?source_id=%d&limit=5", src.ID), "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []domain.IngestionRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunRunning, runs[0].Status)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/runs?source_id=x", "", false).Code)

	rec = do(t, h, http.MethodGet, "/stats/daily", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/healthz", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestReplaceSourcesIsLocalAndPersists(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	path := filepath.Join(t.TempDir(), "sources.yml")
	h := NewRouter(Deps{DB: db, Runner: &fakeRunner{}, SourcesPath: path})

	body := `{"sources":[{"name":"coinafrique","endpoint":"https://cm.coinafrique.test/immobilier","interval":"6h"}]}`
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPut, "/sources", body, false).Code)

	rec := do(t, h, http.MethodPut, "/sources", body, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	srcs, err := store.ListSources(ctx, db)
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, domain.FamilyBoncoin, srcs[0].Family)
	assert.Equal(t, 6*time.Hour, srcs[0].Interval)

	saved, err := config.LoadSources(path)
	require.NoError(t, err)
	require.Len(t, saved.Sources, 1)

	rec = do(t, h, http.MethodPut, "/sources", `{"sources":[{"name":"","endpoint":"nope"}]}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_sources", errorCode(t, rec))
}

func TestReplaceSourcesWritesFileOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	path := filepath.Join(t.TempDir(), "sources.yml")
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h := NewRouter(Deps{DB: db, Runner: &fakeRunner{}, Clock: clock.NewFixed(at), SourcesPath: path})

	_, err := db.ExecContext(ctx, `
CREATE TRIGGER block_expat BEFORE INSERT ON sources WHEN NEW.name = 'expat'
BEGIN SELECT RAISE(ABORT, 'blocked'); END;`)
	require.NoError(t, err)

	body := `{"sources":[` +
		`{"name":"coinafrique","endpoint":"https://cm.coinafrique.test/immobilier"},` +
		`{"name":"expat","endpoint":"https://expat.test/annonces"}]}`
	rec := do(t, h, http.MethodPut, "/sources", body, true)
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "sources file written for a rolled back replace")
	srcs, err := store.ListSources(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, srcs)

	_, err = db.ExecContext(ctx, `DROP TRIGGER block_expat;`)
	require.NoError(t, err)

	rec = do(t, h, http.MethodPut, "/sources", body, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	saved, err := config.LoadSources(path)
	require.NoError(t, err)
	assert.Len(t, saved.Sources, 2)
	srcs, err = store.ListSources(ctx, db)
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	for _, src := range srcs {
		assert.True(t, at.Equal(src.CreatedAt), src.Name)
	}
}

func TestShutdownGuards(t *testing.T) {
	done := make(chan struct{})
	h := NewRouter(Deps{DB: storetest.New(t), Runner: &fakeRunner{}, ShutdownToken: "tok", Shutdown: func() { close(done) }})

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/shutdown", "", false).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/shutdown", "", true).Code)

	req := httptest.NewRequest(http.MethodPost, "/shutdown", nil)
	req.RemoteAddr = "[::1]:4000"
	req.Header.Set("X-Shutdown-Token", "tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback not called")
	}
}

func TestConfigIsRedacted(t *testing.T) {
	var cfg config.Config
	cfg.Notify.SecretAccessKey = "s3cret"
	h := NewRouter(Deps{DB: storetest.New(t), Runner: &fakeRunner{}, Config: cfg})

	rec := do(t, h, http.MethodGet, "/config", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "s3cret")
	assert.Contains(t, rec.Body.String(), redacted)
}

func TestEventStream(t *testing.T) {
	hub := events.NewHub()
	srv := httptest.NewServer(NewRouter(Deps{DB: storetest.New(t), Runner: &fakeRunner{}, Hub: hub}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if l := lines.Text(); strings.HasPrefix(l, "data: ") {
				return strings.TrimPrefix(l, "data: ")
			}
		}
		return ""
	}

	var ping events.Event
	require.NoError(t, json.Unmarshal([]byte(next()), &ping))
	assert.Equal(t, events.TypePing, ping.Type)

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	hub.Emit(events.TypeRunStarted, map[string]any{"source_id": 3})

	var got events.Event
	require.NoError(t, json.Unmarshal([]byte(next()), &got))
	assert.Equal(t, events.TypeRunStarted, got.Type)
	assert.JSONEq(t, `{"source_id":3}`, string(got.Data))
}
