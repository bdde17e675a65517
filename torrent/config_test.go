package torrent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.yaml")
	content := "port: 7000\ndial-timeout: 3s\nspeed-limit-download: 128\n"
	require.NoError(t, os.WriteFile(filename, []byte(content), 0600))

	cfg, err := LoadConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.DialTimeout)
	assert.Equal(t, int64(128), cfg.SpeedLimitDownload)
	assert.Equal(t, DefaultConfig.MaxConnectedPeers, cfg.MaxConnectedPeers)
	assert.Equal(t, DefaultConfig.PeerIDPrefix, cfg.PeerIDPrefix)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig, *cfg)
}

func TestLoadConfigInvalid(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("port: [1, 2"), 0600))
	_, err := LoadConfig(filename)
	assert.Error(t, err)
}
