package session

import (
	"context"
	"errors"
	"sync"

	"github.com/italolelis/musicarr/internal/config"
	"github.com/italolelis/musicarr/internal/downloader"
	"github.com/italolelis/musicarr/internal/logctx"
)

// ErrNoDownloadSource is returned by Initialize when no download service is enabled.
var ErrNoDownloadSource = errors.New("application can't run without enabling at least one download source")

// Initializer creates the client of a download service.
type Initializer interface {
	Initialize(ctx context.Context) (downloader.Client, error)
}

// Session tracks which download services are enabled and whether they initialized.
type Session struct {
	qobuzEnabled bool
	qobuz        Initializer

	mu          sync.RWMutex
	qobuzError  bool
	initialized bool
}

func New(cfg *config.Config, qobuz Initializer) *Session {
	return &Session{
		qobuzEnabled: cfg.Qobuz.Enabled(),
		qobuz:        qobuz,
	}
}

func (s *Session) IsQobuzEnabled() bool {
	return s.qobuzEnabled
}

// IsQobuzInitialized reports whether Qobuz is enabled and its client was created.
func (s *Session) IsQobuzInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.qobuzEnabled && s.initialized && !s.qobuzError
}

// Initialize initializes every enabled service. The session is healthy only
// when all of them succeed.
func (s *Session) Initialize(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	if !s.IsQobuzEnabled() {
		logger.ErrorContext(ctx, "Application can't run without enabling at least one download source",
			"missing", "QOBUZ_USERNAME/QOBUZ_PASSWORD")

		s.mu.Lock()
		s.initialized = false
		s.mu.Unlock()

		return ErrNoDownloadSource
	}

	_, err := s.qobuz.Initialize(ctx)

	s.mu.Lock()
	s.qobuzError = err != nil
	s.initialized = err == nil
	s.mu.Unlock()

	if err != nil {
		logger.ErrorContext(ctx, "failed to initialize qobuz", "err", err)
		return err
	}

	logger.InfoContext(ctx, "download services initialized", "qobuz", true)

	return nil
}

// Healthy reports whether at least one download service is enabled and every
// enabled one initialized.
func (s *Session) Healthy() bool {
	return s.IsQobuzInitialized()
}
