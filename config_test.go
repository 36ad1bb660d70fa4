package modhost

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modhost/feeders"
)

func envFrom(vars map[string]string) feeders.EnvFeeder {
	return feeders.EnvFeeder{
		Prefix: EnvPrefix,
		Lookup: func(key string) (string, bool) {
			v, ok := vars[key]
			return v, ok
		},
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "./modules", cfg.ModulesPath)
	assert.Equal(t, DefaultPackagePattern, cfg.PackagePattern)
	assert.True(t, cfg.DetectCycles)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.StartupTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"modhost.yaml": "modules_path: /srv/modules\nstartup_timeout: 5s\nlisten_addr: :9000\n",
		"modhost.toml": "modules_path = \"/srv/modules\"\nstartup_timeout = \"5s\"\nlisten_addr = \":9000\"\n",
		"modhost.json": `{"modules_path": "/srv/modules", "startup_timeout": "5s", "listen_addr": ":9000"}`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			cfg, err := loadConfig(path, envFrom(map[string]string{
				"MODHOST_LISTEN_ADDR":      ":7000",
				"MODHOST_SHUTDOWN_TIMEOUT": "2s",
			}))
			require.NoError(t, err)

			assert.Equal(t, "/srv/modules", cfg.ModulesPath, "file overrides default")
			assert.Equal(t, 5*time.Second, cfg.StartupTimeout)
			assert.Equal(t, ":7000", cfg.ListenAddr, "environment overrides file")
			assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
			assert.Equal(t, "info", cfg.LogLevel, "default kept")
		})
	}
}

func TestLoadConfigEnvironmentOnly(t *testing.T) {
	cfg, err := loadConfig("", envFrom(map[string]string{
		"MODHOST_DETECT_CYCLES": "false",
		"MODHOST_LOG_LEVEL":     "debug",
	}))
	require.NoError(t, err)
	assert.False(t, cfg.DetectCycles)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig("modhost.ini", envFrom(nil))
	assert.ErrorIs(t, err, ErrUnsupportedConfigFormat)

	_, err = loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), envFrom(nil))
	assert.Error(t, err)

	_, err = loadConfig("", envFrom(map[string]string{"MODHOST_STARTUP_TIMEOUT": "soon"}))
	assert.Error(t, err)

	_, err = loadConfig("", envFrom(map[string]string{"MODHOST_LOG_LEVEL": "verbose"}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PackagePattern = "[unclosed"
	cfg.StartupTimeout = -time.Second
	cfg.ShutdownTimeout = -time.Second

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "package_pattern")
	assert.Contains(t, err.Error(), "startup_timeout")
	assert.Contains(t, err.Error(), "shutdown_timeout")
}

func TestConfigLoaderOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PackagePattern = "*.plugin.yaml"
	cfg.DetectCycles = false
	cfg.StartupTimeout = time.Second
	cfg.ShutdownTimeout = 2 * time.Second

	l := NewLoader(nil, cfg.LoaderOptions()...)
	assert.Equal(t, "*.plugin.yaml", l.pattern)
	assert.False(t, l.detectCycles)
	assert.Equal(t, time.Second, l.startupTimeout)
	assert.Equal(t, 2*time.Second, l.shutdownTimeout)
}
