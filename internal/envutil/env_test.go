package envutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rdma-intercept/rdma-intercept/internal/envutil"
)

func TestParseBool(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"YES", true, false},
		{"on", true, false},
		{"1", true, false},
		{"false", false, false},
		{"NO", false, false},
		{"off", false, false},
		{"0", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		got, err := envutil.ParseBool(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestBoolEnvLookup(t *testing.T) {
	t.Setenv(envutil.Prefix+"ENABLE_QP_CONTROL", "yes")

	b, ok := envutil.Bool("ENABLE_QP_CONTROL")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = envutil.Bool("UNSET_KEY_XYZ")
	assert.False(t, ok)
}

func TestUint32EnvLookup(t *testing.T) {
	t.Setenv(envutil.Prefix+"MAX_QP_PER_PROCESS", "250")

	n, ok := envutil.Uint32("MAX_QP_PER_PROCESS")
	assert.True(t, ok)
	assert.Equal(t, uint32(250), n)
}

func TestUint32EnvLookupInvalid(t *testing.T) {
	t.Setenv(envutil.Prefix+"MAX_QP_PER_PROCESS", "not-a-number")

	_, ok := envutil.Uint32("MAX_QP_PER_PROCESS")
	assert.False(t, ok)
}
