package qobuz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/musicarr/internal/logctx"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testToken  = "user-auth-token"
	testSecret = "fedcba9876543210fedcba9876543210"
	testAppID  = "123456789"
)

var fixedNow = time.Unix(1700000000, 0)

// fakeAPI serves the subset of the Qobuz API the client uses. Handlers can be
// replaced per test through mux before the first request.
type fakeAPI struct {
	t      *testing.T
	server *httptest.Server
	mux    *http.ServeMux

	mu        sync.Mutex
	albums    map[string]string
	tracks    map[string]string
	fileURL   func(trackID string) map[string]any
	downloads map[string]int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{
		t:         t,
		mux:       http.NewServeMux(),
		albums:    make(map[string]string),
		tracks:    make(map[string]string),
		downloads: make(map[string]int),
	}
	f.fileURL = func(trackID string) map[string]any {
		return map[string]any{
			"track_id":      trackID,
			"url":           f.server.URL + "/files/" + trackID,
			"format_id":     27,
			"bit_depth":     24,
			"sampling_rate": 96,
		}
	}

	f.mux.HandleFunc("GET /api.json/0.2/track/getFileUrl", f.handleFileURL)
	f.mux.HandleFunc("GET /api.json/0.2/album/get", func(w http.ResponseWriter, r *http.Request) {
		f.serveStored(w, r, f.albums, r.URL.Query().Get("album_id"))
	})
	f.mux.HandleFunc("GET /api.json/0.2/track/get", func(w http.ResponseWriter, r *http.Request) {
		f.serveStored(w, r, f.tracks, r.URL.Query().Get("track_id"))
	})
	f.mux.HandleFunc("GET /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.downloads[r.PathValue("id")]++
		f.mu.Unlock()
		_, _ = io.WriteString(w, "audio-"+r.PathValue("id"))
	})
	f.mux.HandleFunc("GET /covers/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "jpeg")
	})

	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("X-App-Id") != testAppID || r.Header.Get("X-User-Auth-Token") != testToken {
		writeAPIError(w, http.StatusUnauthorized, "User authentication is required.")
		return false
	}
	return true
}

func (f *fakeAPI) handleFileURL(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}

	q := r.URL.Query()
	formatID, _ := strconv.Atoi(q.Get("format_id"))
	want := requestSignature(q.Get("track_id"), Quality(formatID), q.Get("request_ts"), testSecret)
	if q.Get("request_sig") != want {
		writeAPIError(w, http.StatusBadRequest, "Invalid Request Signature parameter (request_sig)")
		return
	}

	writeJSON(w, f.fileURL(q.Get("track_id")))
}

func (f *fakeAPI) serveStored(w http.ResponseWriter, r *http.Request, store map[string]string, id string) {
	if !f.authorized(w, r) {
		return
	}

	body, ok := store[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound, "No result matching given argument")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (f *fakeAPI) downloadCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[id]
}

// client returns a client that is already authenticated against the fake.
func (f *fakeAPI) client(dir string) *Client {
	c := f.newClient()
	c.Directory = dir
	c.Quality = QualityHiRes192
	c.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: testToken})
	c.secret = testSecret
	return c
}

func (f *fakeAPI) newClient() *Client {
	c := NewClient(
		WithHTTPClient(f.server.Client()),
		WithBaseURLs(f.server.URL+"/api.json/0.2/", f.server.URL),
		WithRateLimit(0),
	)
	c.AppID = testAppID
	c.now = func() time.Time { return fixedNow }
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"status":"error","code":%d,"message":%q}`, status, msg)
}

// captureContext returns a context whose logger also records INFO lines into the returned capture.
func captureContext(t *testing.T) (context.Context, *logctx.Capture) {
	t.Helper()

	c := logctx.NewCapture(slog.LevelInfo)
	t.Cleanup(c.Close)

	ctx := logctx.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return logctx.WithCapture(ctx, c), c
}

func requireFile(t *testing.T, path, content string) {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, content, string(b))
}
