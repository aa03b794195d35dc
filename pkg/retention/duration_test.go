package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRetentionDurationDays(t *testing.T) {
	d, err := ParseRetentionDuration("7d")
	assert.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)
}

func TestParseRetentionDurationWeeks(t *testing.T) {
	d, err := ParseRetentionDuration("4w")
	assert.NoError(t, err)
	assert.Equal(t, 28*24*time.Hour, d)
}

func TestParseRetentionDurationMonths(t *testing.T) {
	d, err := ParseRetentionDuration("1m")
	assert.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, d)
}

func TestParseRetentionDurationYears(t *testing.T) {
	d, err := ParseRetentionDuration("1y")
	assert.NoError(t, err)
	assert.Equal(t, 365*24*time.Hour, d)
}

func TestParseRetentionDurationRejectsUnknownUnit(t *testing.T) {
	_, err := ParseRetentionDuration("7x")
	assert.Error(t, err)
}

func TestParseRetentionDurationRejectsEmpty(t *testing.T) {
	_, err := ParseRetentionDuration("")
	assert.Error(t, err)
}

func TestParseRetentionDurationRejectsNonNumeric(t *testing.T) {
	_, err := ParseRetentionDuration("xd")
	assert.Error(t, err)
}
