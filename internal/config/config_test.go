package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadAppliesDefaultsOverYAML(t *testing.T) {
	cfg, err := Load([]byte("ring_max_entries: 4096\nlog_level: debug\n"))
	require.NoError(t, err)
	require.Equal(t, uint64(4096), cfg.RingMaxEntries)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, Default().ControlPipePath, cfg.ControlPipePath)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	_, err := Load([]byte("log_level: verbose\n"))
	require.Error(t, err)
}

func TestLoadRejectsZeroRingSize(t *testing.T) {
	_, err := Load([]byte("ring_max_entries: 0\n"))
	require.Error(t, err)
}

func TestLoadValidationFailureIsErrConfiguration(t *testing.T) {
	_, err := Load([]byte("log_level: verbose\n"))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadParseFailureIsErrConfiguration(t *testing.T) {
	_, err := Load([]byte("not: [valid\n"))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	data, err := cfg.Marshal()
	require.NoError(t, err)
	reloaded, err := Load(data)
	require.NoError(t, err)
	require.True(t, cfg.Equal(reloaded))
}

func TestWatcherNotifiesOnReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "service.yaml")
	initial := Default()
	data, err := initial.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	stop := make(chan struct{})
	defer close(stop)
	changes, errs := w.Watch(stop)

	updated := initial
	updated.LogLevel = "debug"
	updatedData, err := updated.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, updatedData, 0o644))

	select {
	case cfg := <-changes:
		require.Equal(t, "debug", cfg.LogLevel)
	case err := <-errs:
		t.Fatalf("unexpected watch error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload notification")
	}
}
