package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDownloader answers "ok:<url>" for strings and "Invalid URL" otherwise.
type mockDownloader struct {
	mu    sync.Mutex
	calls []any
}

func (m *mockDownloader) Download(_ context.Context, url any) string {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	m.mu.Unlock()

	s, ok := url.(string)
	if !ok || s == "" {
		return "Invalid URL"
	}
	return "ok:" + s
}

// slowDownloader takes delay per URL unless its context is canceled first.
type slowDownloader struct {
	delay time.Duration

	mu   sync.Mutex
	errs []error
	done chan struct{}
	want int
}

func (m *slowDownloader) Download(ctx context.Context, url any) string {
	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.errs = append(m.errs, ctx.Err())
	if len(m.errs) == m.want {
		close(m.done)
	}

	return "Completed"
}

type staticHealth bool

func (h staticHealth) Healthy() bool { return bool(h) }

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/qobuz", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestHandleDownload_BadRequests(t *testing.T) {
	bodies := map[string]string{
		"empty body":     "",
		"not json":       "urls=a,b",
		"array body":     `["https://play.qobuz.com/album/x"]`,
		"missing urls":   `{}`,
		"null urls":      `{"urls": null}`,
		"string urls":    `{"urls": "https://play.qobuz.com/album/x"}`,
		"object urls":    `{"urls": {"0": "https://play.qobuz.com/album/x"}}`,
		"number urls":    `{"urls": 3}`,
		"truncated json": `{"urls": ["a"`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			d := &mockDownloader{}
			rec := post(t, NewQobuzHandler(d, staticHealth(true)).Routes(), body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, `{"error": "No valid list of URLs provided"}`, rec.Body.String())
			assert.Empty(t, d.calls)
		})
	}
}

func TestHandleDownload_ResultsInInputOrder(t *testing.T) {
	d := &mockDownloader{}
	rec := post(t, NewQobuzHandler(d, staticHealth(true)).Routes(),
		`{"urls": ["https://play.qobuz.com/album/a", 42, "", null, "https://play.qobuz.com/track/b"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results": [
		{"url": "https://play.qobuz.com/album/a", "output": "ok:https://play.qobuz.com/album/a"},
		{"url": 42, "output": "Invalid URL"},
		{"url": "", "output": "Invalid URL"},
		{"url": null, "output": "Invalid URL"},
		{"url": "https://play.qobuz.com/track/b", "output": "ok:https://play.qobuz.com/track/b"}
	]}`, rec.Body.String())
	assert.Len(t, d.calls, 5)
}

func TestHandleDownload_SameLengthAsInput(t *testing.T) {
	for _, n := range []int{0, 1, 7, 30} {
		urls := make([]string, n)
		for i := range urls {
			urls[i] = fmt.Sprintf("https://play.qobuz.com/album/%d", i)
		}
		body, err := json.Marshal(map[string]any{"urls": urls})
		require.NoError(t, err)

		rec := post(t, NewQobuzHandler(&mockDownloader{}, staticHealth(true)).Routes(), string(body))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp DownloadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Results)
		require.Len(t, resp.Results, n)
		for i, r := range resp.Results {
			assert.Equal(t, urls[i], r.URL)
		}
	}
}

func TestHandleDownload_LargeNumbersEchoed(t *testing.T) {
	rec := post(t, NewQobuzHandler(&mockDownloader{}, staticHealth(true)).Routes(), `{"urls": [12345678901234567890]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"url":12345678901234567890`)
}

func TestHandleDownload_CallerDisconnectDoesNotCancelBatch(t *testing.T) {
	d := &slowDownloader{delay: 200 * time.Millisecond, done: make(chan struct{}), want: 3}
	srv := httptest.NewServer(NewQobuzHandler(d, staticHealth(true)).Routes())
	defer srv.Close()

	client := &http.Client{Timeout: 50 * time.Millisecond}
	body := `{"urls": ["https://play.qobuz.com/album/a", "https://play.qobuz.com/album/b", "https://play.qobuz.com/album/c"]}`

	_, err := client.Post(srv.URL+"/qobuz", "application/json", strings.NewReader(body))
	require.Error(t, err)

	select {
	case <-d.done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, err := range d.errs {
		assert.NoError(t, err, "url %d", i)
	}
}

func TestHandleDownload_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/qobuz", nil)
	rec := httptest.NewRecorder()
	NewQobuzHandler(&mockDownloader{}, staticHealth(true)).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		healthy  bool
		wantCode int
		wantBody string
	}{
		{true, http.StatusOK, "Healthy"},
		{false, http.StatusServiceUnavailable, "Unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.wantBody, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			NewQobuzHandler(&mockDownloader{}, staticHealth(tt.healthy)).Routes().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
		})
	}
}
