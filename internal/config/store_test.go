package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesaplay/mpesa-sim/internal/eventbus"
)

func TestNewStoreSeedsDefaultsWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	store, err := NewStore(path, eventbus.NoopBus{})
	require.NoError(t, err)

	settings := store.Get()
	assert.Equal(t, "info", settings.LogLevel)
	assert.Equal(t, "development", settings.Environment)
	assert.Equal(t, 30_000, settings.DefaultSafetyWindowMs)
	assert.FileExists(t, path)
}

func TestNewStoreLoadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	first, err := NewStore(path, eventbus.NoopBus{})
	require.NoError(t, err)
	_, err = first.Update(func(s *Settings) { s.LogLevel = "debug" })
	require.NoError(t, err)

	second, err := NewStore(path, eventbus.NoopBus{})
	require.NoError(t, err)
	assert.Equal(t, "debug", second.Get().LogLevel)
}

func TestUpdatePersistsAndEmitsEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	var emittedEvent string
	var emittedPayload any

	recordingBus := recordingBus{}
	store, err := NewStore(path, &recordingBus)
	require.NoError(t, err)

	updated, err := store.Update(func(s *Settings) { s.DefaultStkDelayMs = 2_500 })
	require.NoError(t, err)
	assert.Equal(t, 2_500, updated.DefaultStkDelayMs)
	assert.Equal(t, 2_500, store.Get().DefaultStkDelayMs)

	emittedEvent = recordingBus.event
	emittedPayload = recordingBus.payload
	assert.Equal(t, eventbus.EventSettingsUpdated, emittedEvent)
	settings, ok := emittedPayload.(Settings)
	require.True(t, ok)
	assert.Equal(t, 2_500, settings.DefaultStkDelayMs)
}

type recordingBus struct {
	event   string
	payload any
}

func (r *recordingBus) EmitAll(event string, payload any) error {
	r.event = event
	r.payload = payload
	return nil
}
