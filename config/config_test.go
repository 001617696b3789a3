package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(APIURLEnv, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, int64(50*MB), cfg.MaxFileSize())
	assert.Equal(t, 30, cfg.RequestTimeoutSeconds)
	errTTL, okTTL, _ := cfg.NoticeTTLs()
	assert.Equal(t, 5.0, errTTL.Seconds())
	assert.Equal(t, 3.0, okTTL.Seconds())
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("listenPort: 4000\napiBaseURL: http://detector:9000/\nrequestTimeoutSeconds: 10\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv(APIURLEnv, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.ListenPort)
	assert.Equal(t, "http://detector:9000", cfg.APIBaseURL)
	assert.Equal(t, 10.0, cfg.RequestTimeout().Seconds())

	t.Setenv(APIURLEnv, "https://tables.example.com")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://tables.example.com", cfg.APIBaseURL)
}

func TestLoad_RejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenPort: [1, 2"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())

	cfg.APIBaseURL = "ftp://nope"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.NameDisplayLimit = 3
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RequestTimeoutSeconds = 0
	assert.Error(t, cfg.Validate())
}
