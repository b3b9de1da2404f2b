package downloader

import (
	"context"
	"fmt"
	"os"

	"github.com/italolelis/musicarr/internal/config"
	"github.com/italolelis/musicarr/internal/qobuz"
	"github.com/italolelis/musicarr/internal/telemetry"
)

const dirPerm = 0755

// NewQobuzFactory returns a factory that fetches the app tokens, applies the
// QOBUZ_* overrides and logs in. opts are applied to every client it builds.
func NewQobuzFactory(cfg config.Qobuz, t *telemetry.Telemetry, opts ...qobuz.Option) ClientFactory {
	return func(ctx context.Context) (Client, error) {
		if !cfg.Enabled() {
			return nil, ErrDisabled
		}

		c := qobuz.NewClient(append([]qobuz.Option{
			qobuz.WithRateLimit(cfg.RateLimit),
			qobuz.WithTelemetry(t),
		}, opts...)...)
		c.MaxParallel = cfg.MaxParallel
		c.Timeout = cfg.Timeout

		// Configured tokens save scraping the web player on every start.
		if cfg.AppID != "" && len(cfg.Secrets) > 0 {
			c.AppID, c.Secrets = cfg.AppID, cfg.Secrets
		} else if err := c.GetTokens(ctx); err != nil {
			return nil, fmt.Errorf("failed to get qobuz tokens: %w", err)
		}

		applyOverrides(c, cfg)

		if err := os.MkdirAll(c.Directory, dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create download directory: %w", err)
		}

		if err := c.InitializeClient(ctx, *cfg.Username, *cfg.Password); err != nil {
			return nil, fmt.Errorf("failed to authenticate with qobuz: %w", err)
		}

		return c, nil
	}
}

func applyOverrides(c *qobuz.Client, cfg config.Qobuz) {
	c.Directory = cfg.Directory

	if cfg.FolderFormat != "" {
		c.FolderFormat = cfg.FolderFormat
	}

	if cfg.TrackFormat != "" {
		c.TrackFormat = cfg.TrackFormat
	}

	if cfg.Quality != 0 {
		c.Quality = qobuz.Quality(cfg.Quality)
	}
}
