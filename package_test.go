package modhost

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modhost/feeders"
)

func TestManifestCandidates(t *testing.T) {
	m := Manifest{EntryPoint: "a", EntryPoints: []string{"b", "a", "", "c"}}
	assert.Equal(t, []string{"a", "b", "c"}, m.Candidates())
	assert.Empty(t, Manifest{}.Candidates())
}

func TestReadManifestFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"audit.module.yaml": "entrypoint: audit\nid: audit\nversion: 1.0.0\nsettings:\n  retention: 48h\n  capacity: 500\n",
		"audit.module.toml": "entrypoint = \"audit\"\nid = \"audit\"\nversion = \"1.0.0\"\n[settings]\nretention = \"48h\"\ncapacity = 500\n",
		"audit.module.json": `{"entrypoint": "audit", "id": "audit", "version": "1.0.0", "settings": {"retention": "48h", "capacity": 500}}`,
	}

	type auditSettings struct {
		Retention time.Duration `yaml:"retention"`
		Capacity  int           `yaml:"capacity"`
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := writePackage(t, dir, name, content)
			m, format, err := ReadManifest(path)
			require.NoError(t, err)

			want, _ := feeders.FormatOf(path)
			assert.Equal(t, want, format)
			assert.Equal(t, "audit", m.EntryPoint)
			assert.Equal(t, "audit", m.ID)
			assert.Equal(t, "1.0.0", m.Version)

			var s auditSettings
			require.NoError(t, NewSettings(m.Settings).Decode(&s))
			assert.Equal(t, 48*time.Hour, s.Retention)
			assert.Equal(t, 500, s.Capacity)
		})
	}
}

func TestReadManifestErrors(t *testing.T) {
	_, _, err := ReadManifest("audit.module.xml")
	assert.ErrorIs(t, err, ErrPackageFormatUnsupported)

	_, _, err = ReadManifest(filepath.Join(t.TempDir(), "absent.module.yaml"))
	assert.ErrorIs(t, err, ErrPackageDecode)
}

func TestSettingsAccessors(t *testing.T) {
	s := NewSettings(map[string]any{"schedule": "@every 1m", "enabled": true, "port": 8080})

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Has("schedule"))
	assert.Equal(t, "@every 1m", s.String("schedule", ""))
	assert.Equal(t, "8080", s.String("port", ""))
	assert.Equal(t, "fallback", s.String("absent", "fallback"))
	assert.True(t, s.Bool("enabled", false))
	assert.True(t, s.Bool("port", true), "non-bool values fall back")

	v, ok := s.Get("port")
	assert.True(t, ok)
	assert.Equal(t, 8080, v)

	empty := NewSettings(nil)
	assert.Zero(t, empty.Len())
	assert.False(t, empty.Has("schedule"))
}
