package modhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input string
		want  Version
	}{
		{"1.2", Version{Major: 1, Minor: 2, Original: "1.2"}},
		{"1.2.3", Version{Major: 1, Minor: 2, Patch: 3, Original: "1.2.3"}},
		{"1.2.3.4", Version{Major: 1, Minor: 2, Patch: 3, Revision: 4, Original: "1.2.3.4"}},
		{"v2.0.0", Version{Major: 2, Original: "v2.0.0"}},
		{"1.0.0-beta.1", Version{Major: 1, Prerelease: "beta.1", Original: "1.0.0-beta.1"}},
		{"1.0.0+build.7", Version{Major: 1, Original: "1.0.0+build.7"}},
		{" 3.1.0 ", Version{Major: 3, Minor: 1, Original: "3.1.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseVersionRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "1", "one.two", "1.2.3.4.5", "1..2", "1.2.x"} {
		_, err := ParseVersion(input)
		assert.ErrorIs(t, err, ErrInvalidVersion, input)
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0", "1.0.0.0", 0},
		{"1.10.0", "1.9.0", 1},
		{"1.0.0", "2.0.0", -1},
		{"1.0.0.1", "1.0.0", 1},
		{"1.0.0-rc.1", "1.0.0", -1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
		{"1.0.0+build.1", "1.0.0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParseVersion(tt.a).Compare(MustParseVersion(tt.b)))
			assert.Equal(t, -tt.want, MustParseVersion(tt.b).Compare(MustParseVersion(tt.a)))
		})
	}
}

func TestInRange(t *testing.T) {
	tests := []struct {
		version, min, max string
		want              bool
	}{
		{"1.5.0", "", "", true},
		{"1.5.0", "1.0.0", "", true},
		{"0.9.9", "1.0.0", "", false},
		{"1.0.0", "1.0.0", "1.9.9", true},
		{"1.9.9", "1.0.0", "1.9.9", true},
		{"2.0.0", "1.0.0", "1.9.9", false},
		{"1.9.9.1", "", "1.9.9", false},
	}
	for _, tt := range tests {
		got, err := InRange(tt.version, tt.min, tt.max)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s in [%s, %s]", tt.version, tt.min, tt.max)
	}

	_, err := InRange("1.0.0", "first", "")
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "v1.2.0", MustParseVersion("v1.2.0").String())
	assert.Equal(t, "1.2.3.4-rc", Version{Major: 1, Minor: 2, Patch: 3, Revision: 4, Prerelease: "rc"}.String())
	assert.Panics(t, func() { MustParseVersion("latest") })
}
