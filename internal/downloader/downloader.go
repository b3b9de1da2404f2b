package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/italolelis/musicarr/internal/logctx"
	"github.com/italolelis/musicarr/internal/notifier"
	"github.com/italolelis/musicarr/internal/qobuz"
	"github.com/italolelis/musicarr/internal/stringutil"
	"github.com/italolelis/musicarr/internal/telemetry"
)

const serviceName = "qobuz"

// Result strings reported for a URL when the client output cannot be used.
const (
	ResultInvalidURL     = "Invalid URL"
	ResultError          = "Error"
	ResultUnknown        = "Unknown"
	ResultNotInitialized = "QobuzDL not initialized"
)

// ErrDisabled is returned by Initialize when the Qobuz credentials are missing.
var ErrDisabled = errors.New("qobuz is disabled: QOBUZ_USERNAME and QOBUZ_PASSWORD are required")

// Client handles one Qobuz URL. Progress is reported as INFO lines on the
// context logger; the last of them becomes the result of the URL.
type Client interface {
	HandleURL(ctx context.Context, url string) error
}

// ClientFactory builds a ready to use Client. It is called at most once per
// successful initialization.
type ClientFactory func(ctx context.Context) (Client, error)

type Option func(*Downloader)

func WithNotifier(n notifier.Notifier) Option {
	return func(d *Downloader) { d.notifier = n }
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(d *Downloader) { d.telemetry = t }
}

// Downloader owns the Qobuz client handle and turns each URL into a result string.
type Downloader struct {
	enabled   bool
	factory   ClientFactory
	notifier  notifier.Notifier
	telemetry *telemetry.Telemetry

	mu     sync.Mutex
	client Client
}

func New(enabled bool, factory ClientFactory, opts ...Option) *Downloader {
	d := &Downloader{enabled: enabled, factory: factory}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Initialize creates the client on first use and returns the existing one
// afterwards. A failed attempt leaves no client, so a later call retries.
func (d *Downloader) Initialize(ctx context.Context) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}

	if !d.enabled {
		return nil, ErrDisabled
	}

	c, err := d.factory(ctx)
	if err != nil {
		d.telemetry.RecordSystemError(ctx, "downloader", "initialization")
		return nil, fmt.Errorf("failed to initialize qobuz client: %w", err)
	}

	d.client = c
	logctx.LoggerFromContext(ctx).InfoContext(ctx, "qobuz client initialized")

	return c, nil
}

// Download processes url and returns its result string. It never fails: every
// problem is folded into one of the Result values.
func (d *Downloader) Download(ctx context.Context, url any) string {
	logger := logctx.LoggerFromContext(ctx)

	rawURL, ok := url.(string)
	if !ok || rawURL == "" {
		logger.WarnContext(ctx, "invalid url", "url", url)
		return ResultInvalidURL
	}

	d.mu.Lock()
	client := d.client
	d.mu.Unlock()

	if client == nil {
		logger.ErrorContext(ctx, "qobuz client not initialized", "url", rawURL)
		return ResultNotInitialized
	}

	logger = logger.With("url", rawURL)
	ctx = logctx.WithLogger(ctx, logger)
	logger.InfoContext(ctx, "Processing Qobuz URL")

	start := time.Now()

	capture := logctx.NewCapture(slog.LevelInfo)
	defer capture.Close()

	err := d.telemetry.InstrumentDownload(ctx, serviceName, func(ctx context.Context) error {
		return handleURL(logctx.WithCapture(ctx, capture), client, rawURL)
	})

	result, outcome := resultOf(capture.String(), err)

	switch outcome {
	case "error":
		logger.ErrorContext(ctx, "failed to process qobuz url", "err", err)
	case "invalid_url":
		logger.WarnContext(ctx, "qobuz rejected url", "err", err)
	}

	d.telemetry.RecordDownload(ctx, serviceName, outcome, time.Since(start))
	logger.InfoContext(ctx, "qobuz url processed", "result", result, "duration", time.Since(start))

	d.notify(ctx, rawURL, result)

	return result
}

func (d *Downloader) notify(ctx context.Context, url, result string) {
	if d.notifier == nil {
		return
	}

	if err := d.notifier.Notify(ctx, fmt.Sprintf("Qobuz download finished: %s\n%s", url, result)); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to send notification", "err", err)
	}
}

func handleURL(ctx context.Context, client Client, url string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &qobuz.PanicError{Value: r}
		}
	}()

	return client.HandleURL(ctx, url)
}

func resultOf(captured string, err error) (result, outcome string) {
	if err != nil {
		var urlErr *qobuz.InvalidURLError
		if errors.As(err, &urlErr) {
			return ResultInvalidURL, "invalid_url"
		}
		return ResultError, "error"
	}

	if line := stringutil.LastLine(captured); line != "" {
		return line, "success"
	}

	return ResultUnknown, "unknown"
}
