package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rdma-intercept/rdma-intercept/domain"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want domain.LogLevel
		ok   bool
	}{
		{"debug", domain.LogDebug, true},
		{"DEBUG", domain.LogDebug, true},
		{"info", domain.LogInfo, true},
		{"warn", domain.LogWarn, true},
		{"WARNING", domain.LogWarn, true},
		{"error", domain.LogError, true},
		{"fatal", domain.LogFatal, true},
		{"bogus", domain.LogInfo, false},
	}

	for _, tt := range tests {
		got, ok := domain.ParseLogLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", domain.LogDebug.String())
	assert.Equal(t, "WARN", domain.LogWarn.String())
	assert.Equal(t, "FATAL", domain.LogFatal.String())
}

func TestDefaultPolicyConfig(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()

	assert.True(t, cfg.EnableIntercept)
	assert.False(t, cfg.EnableQPControl)
	assert.False(t, cfg.EnableMRControl)
	assert.True(t, cfg.QPAllowed[domain.QPTypeRC])
	assert.False(t, cfg.QPAllowed[domain.QPTypeOther])
}
