package session

import (
	"context"
	"errors"
	"testing"

	"github.com/italolelis/musicarr/internal/config"
	"github.com/italolelis/musicarr/internal/downloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockInitializer struct {
	initializeFunc func(ctx context.Context) (downloader.Client, error)
	calls          int
}

func (m *mockInitializer) Initialize(ctx context.Context) (downloader.Client, error) {
	m.calls++
	if m.initializeFunc != nil {
		return m.initializeFunc(ctx)
	}
	return nil, nil
}

func configWith(username, password *string) *config.Config {
	cfg := &config.Config{}
	cfg.Qobuz.Username = username
	cfg.Qobuz.Password = password
	return cfg
}

func str(s string) *string { return &s }

func TestSession_Disabled(t *testing.T) {
	qb := &mockInitializer{}
	s := New(configWith(str("me@example.com"), str("")), qb)

	assert.False(t, s.IsQobuzEnabled())

	err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrNoDownloadSource)
	assert.Zero(t, qb.calls)
	assert.False(t, s.Healthy())
	assert.False(t, s.IsQobuzInitialized())
}

func TestSession_Initialized(t *testing.T) {
	qb := &mockInitializer{}
	s := New(configWith(str("me@example.com"), str("secret")), qb)

	assert.True(t, s.IsQobuzEnabled())
	assert.False(t, s.Healthy(), "not healthy before Initialize")

	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, 1, qb.calls)
	assert.True(t, s.Healthy())
	assert.True(t, s.IsQobuzInitialized())
}

func TestSession_InitializationFails(t *testing.T) {
	boom := errors.New("login refused")
	qb := &mockInitializer{initializeFunc: func(context.Context) (downloader.Client, error) {
		return nil, boom
	}}
	s := New(configWith(str("me@example.com"), str("secret")), qb)

	err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, s.IsQobuzEnabled())
	assert.False(t, s.IsQobuzInitialized())
	assert.False(t, s.Healthy())

	// A later successful attempt clears the error.
	qb.initializeFunc = nil
	require.NoError(t, s.Initialize(context.Background()))
	assert.True(t, s.Healthy())
}
