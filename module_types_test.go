package modhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityNamesAndOrdering(t *testing.T) {
	ordered := []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow, PriorityVeryLow}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1], ordered[i])
	}
	assert.Equal(t, "critical", PriorityCritical.String())
	assert.Equal(t, "verylow", PriorityVeryLow.String())
	assert.Equal(t, "priority(150)", Priority(150).String())
}

func TestParsePriority(t *testing.T) {
	for input, want := range map[string]Priority{
		"critical": PriorityCritical,
		"High":     PriorityHigh,
		" normal ": PriorityNormal,
		"LOW":      PriorityLow,
		"very_low": PriorityVeryLow,
		"very-low": PriorityVeryLow,
		"VeryLow":  PriorityVeryLow,
	} {
		got, err := ParsePriority(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParsePriority("urgent")
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "not_loaded", StatusNotLoaded.String())
	assert.Equal(t, "running", StatusRunning.String())
	assert.Equal(t, "status(42)", Status(42).String())

	for _, s := range []Status{StatusStopped, StatusFailed, StatusDisabled} {
		assert.True(t, s.IsTerminal(), s.String())
	}
	for _, s := range []Status{StatusLoaded, StatusStarting, StatusRunning, StatusStopping} {
		assert.False(t, s.IsTerminal(), s.String())
	}
}

func TestDependencyConstructors(t *testing.T) {
	req := Requires("logging", "1.0.0", "")
	assert.True(t, req.Required)
	assert.Equal(t, "requires logging (>= 1.0.0)", req.String())

	opt := Optional("audit", "1.0.0", "1.9.9")
	assert.False(t, opt.Required)
	assert.Equal(t, "optional audit (between 1.0.0 and 1.9.9)", opt.String())

	assert.Equal(t, "requires cache (any)", Requires("cache", "", "").String())
	assert.Equal(t, "requires cache (<= 2.0.0)", Requires("cache", "", "2.0.0").String())
}

func TestNewCapability(t *testing.T) {
	c := NewCapability("export.csv", "exports reports as CSV", "Reporting")
	assert.Equal(t, Capability{Name: "export.csv", Description: "exports reports as CSV", Category: "Reporting", Enabled: true}, c)
	assert.Equal(t, "General", NewCapability("x", "y", "").Category)
}

func TestValidationResult(t *testing.T) {
	ok := ValidationSuccess("retention is short")
	assert.True(t, ok.Valid)
	assert.NoError(t, ok.Err())

	bad := ValidationFailure("dsn is empty", "port is zero")
	merged := ok.Merge(bad)
	assert.False(t, merged.Valid)
	assert.Equal(t, []string{"dsn is empty", "port is zero"}, merged.Errors)
	assert.Equal(t, []string{"retention is short"}, merged.Warnings)
	assert.EqualError(t, merged.Err(), "dsn is empty\nport is zero")

	assert.EqualError(t, ValidationResult{}.Err(), "validation failed")
}
