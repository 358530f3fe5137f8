package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorjobs/internal/providers/tensorart"
	"tensorjobs/internal/report"
	"tensorjobs/internal/storage"
)

// rewriteTransport sends requests for host "x" to the mock service so that
// output URLs can keep their production shape.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == "x" {
		clone := req.Clone(req.Context())
		clone.URL.Scheme = rt.target.Scheme
		clone.URL.Host = rt.target.Host
		clone.Host = rt.target.Host
		req = clone
	}
	return http.DefaultTransport.RoundTrip(req)
}

type mockService struct {
	mu        sync.Mutex
	uploads   int
	puts      int
	submits   []map[string]any
	polls     int
	outputPNG []byte
}

func (m *mockService) handler(baseURL func() string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/resource/image", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.uploads++
		m.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"resourceId": "R1",
			"putUrl":     baseURL() + "/signed/R1",
			"headers":    map[string]string{"Content-Type": "image/png"},
		})
	})
	mux.HandleFunc("PUT /signed/R1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			http.Error(w, "unexpected auth", http.StatusBadRequest)
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)
		m.mu.Lock()
		m.puts++
		m.mu.Unlock()
	})
	mux.HandleFunc("POST /v1/jobs/workflow/template", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		m.mu.Lock()
		m.submits = append(m.submits, body)
		m.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"job": map[string]any{"id": "J1", "status": "CREATED"}})
	})
	mux.HandleFunc("GET /v1/jobs/J1", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.polls++
		n := m.polls
		m.mu.Unlock()
		job := map[string]any{"id": "J1", "status": "PENDING"}
		if n >= 3 {
			job["status"] = "SUCCESS"
			job["successInfo"] = map[string]any{"images": []map[string]string{{"url": "https://x/out.png"}}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"job": job})
	})
	mux.HandleFunc("GET /out.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(m.outputPNG)
	})
	return mux
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{G: 160, A: 255}), imaging.PNG))
	return buf.Bytes()
}

func TestEndToEndSingleInputSingleStyle(t *testing.T) {
	dir := t.TempDir()
	inputs := filepath.Join(dir, "Inputs")
	require.NoError(t, os.Mkdir(inputs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inputs, "face.png"), encodePNG(t, 300, 400), 0o644))

	mock := &mockService{outputPNG: encodePNG(t, 1024, 1024)}
	var srv *httptest.Server
	srv = httptest.NewServer(mock.handler(func() string { return srv.URL }))
	defer srv.Close()
	target, _ := url.Parse(srv.URL)

	client := tensorart.NewClient(tensorart.Options{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		HTTPClient: &http.Client{Transport: rewriteTransport{target: target}, Timeout: 5 * time.Second},
	})
	poller := tensorart.NewPoller(client, tensorart.PollPolicy{Interval: time.Millisecond, MaxInterval: 4 * time.Millisecond, MaxAttempts: 20}, nil)
	outputs := filepath.Join(dir, "outputs")
	store, err := storage.NewFileStore(outputs)
	require.NoError(t, err)

	orch, err := New(Options{Client: client, Poller: poller, Store: store, Profile: testProfile()})
	require.NoError(t, err)

	files, err := ListInputImages(inputs)
	require.NoError(t, err)
	items, err := orch.Batch(context.Background(), BatchRequest{Inputs: files, Styles: []string{"sai-comic book"}, Prompt: "portrait"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, items[0].Err)

	assert.Equal(t, 1, mock.uploads)
	assert.Equal(t, 1, mock.puts)
	require.Len(t, mock.submits, 1)
	assert.GreaterOrEqual(t, mock.polls, 3)

	fields := mock.submits[0]["fields"].(map[string]any)["fieldAttrs"].([]any)
	assert.Contains(t, fields, map[string]any{"nodeId": "12", "fieldName": "image", "fieldValue": "R1"})
	assert.Contains(t, fields, map[string]any{"nodeId": "25", "fieldName": "style", "fieldValue": "sai-comic book"})
	assert.Len(t, mock.submits[0]["request_id"], 32)

	wantPath := filepath.Join(outputs, "b55ecbbbca220b083497b13a6097e7ee.png")
	assert.Equal(t, wantPath, items[0].Output.LocalPath)
	saved, err := os.ReadFile(wantPath)
	require.NoError(t, err)
	assert.Equal(t, mock.outputPNG, saved)

	writer := report.NewWriter(report.Options{})
	layout, err := writer.WriteXLSX(filepath.Join(dir, "results.xlsx"), []report.Row{{
		InputPath:  items[0].InputPath,
		Style:      items[0].Style,
		OutputPath: items[0].Output.LocalPath,
	}})
	require.NoError(t, err)
	require.Len(t, layout.Rows, 1)
	row := layout.Rows[0]
	assert.Equal(t, "sai-comic book", row.Row.Style)
	require.NotNil(t, row.Input)
	assert.Equal(t, [2]int{141, 189}, [2]int{row.Input.Width, row.Input.Height})
	require.NotNil(t, row.Output)
	assert.Equal(t, [2]int{189, 189}, [2]int{row.Output.Width, row.Output.Height})
}
