package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tensorjobs/internal/http/handlers"
	"tensorjobs/internal/ledger"
)

type fakeJobs struct {
	entries   []ledger.Entry
	lastLimit int
	err       error
}

func (f *fakeJobs) List(ctx context.Context, limit int) ([]ledger.Entry, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeJobs) Get(ctx context.Context, jobID string) (*ledger.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.entries {
		if f.entries[i].JobID == jobID {
			return &f.entries[i], nil
		}
	}
	return nil, ledger.ErrNotFound
}

func newTestRouter(jobs *fakeJobs, ping func(context.Context) error) http.Handler {
	app := handlers.NewApp(jobs, ping, nil)
	return NewRouter(app, RouterOptions{Logger: zerolog.Nop()})
}

func do(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (%s)", target, err, rec.Body.String())
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := do(t, newTestRouter(&fakeJobs{}, nil), "/v1/healthz")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response: %d %v", rec.Code, body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestHealthDatabaseDown(t *testing.T) {
	ping := func(context.Context) error { return errors.New("refused") }
	rec, body := do(t, newTestRouter(&fakeJobs{}, ping), "/v1/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body["error"] != "database unavailable" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestListJobs(t *testing.T) {
	jobs := &fakeJobs{entries: []ledger.Entry{
		{JobID: "J2", Status: "SUCCESS", CreatedAt: time.Unix(2, 0)},
		{JobID: "J1", Status: "FAILED", CreatedAt: time.Unix(1, 0)},
	}}
	rec, body := do(t, newTestRouter(jobs, nil), "/v1/jobs?limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if jobs.lastLimit != 10 {
		t.Fatalf("expected limit 10, got %d", jobs.lastLimit)
	}
	if body["count"] != float64(2) {
		t.Fatalf("unexpected count: %v", body["count"])
	}
	list := body["jobs"].([]any)
	if list[0].(map[string]any)["job_id"] != "J2" {
		t.Fatalf("unexpected order: %v", list)
	}
}

func TestListJobsRejectsBadLimit(t *testing.T) {
	rec, _ := do(t, newTestRouter(&fakeJobs{}, nil), "/v1/jobs?limit=abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListJobsStoreError(t *testing.T) {
	rec, body := do(t, newTestRouter(&fakeJobs{err: errors.New("db down")}, nil), "/v1/jobs")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body["request_id"] == "" {
		t.Fatal("error body should carry the request id")
	}
}

func TestGetJob(t *testing.T) {
	jobs := &fakeJobs{entries: []ledger.Entry{{JobID: "J1", Status: "SUCCESS", OutputPath: "outputs/a.png"}}}
	h := newTestRouter(jobs, nil)

	rec, body := do(t, h, "/v1/jobs/J1")
	if rec.Code != http.StatusOK || body["output_path"] != "outputs/a.png" {
		t.Fatalf("unexpected response: %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, "/v1/jobs/J9")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
