package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/policy"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rdma_intercept.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	s := policy.NewService()
	cfg, err := s.Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))

	require.NoError(t, err)
	assert.Equal(t, policy.DefaultPolicyConfig(), cfg)
}

func TestLoadAppliesFileValues(t *testing.T) {
	path := writeConfig(t, `
# comment
enable_qp_control = true
max_qp_per_process = 42
allow_ud_qp = false
`)

	s := policy.NewService()
	cfg, err := s.Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.EnableQPControl)
	assert.Equal(t, uint32(42), cfg.MaxQPPerProcess)
	assert.False(t, cfg.QPAllowed[domain.QPTypeUD])
}

func TestLoadSkipsMalformedAndUnrecognizedLines(t *testing.T) {
	path := writeConfig(t, "not-a-kv-line\nbogus_key = true\nmax_qp_per_process = 7\n")

	s := policy.NewService()
	cfg, err := s.Load(path)

	require.NoError(t, err)
	assert.Equal(t, uint32(7), cfg.MaxQPPerProcess)
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	path := writeConfig(t, "max_qp_per_process = 42\n")
	t.Setenv("RDMA_INTERCEPT_MAX_QP_PER_PROCESS", "99")

	s := policy.NewService()
	cfg, err := s.Load(path)

	require.NoError(t, err)
	assert.Equal(t, uint32(99), cfg.MaxQPPerProcess)
}

func TestReloadRepeatsLastPath(t *testing.T) {
	path := writeConfig(t, "max_qp_per_process = 10\n")

	s := policy.NewService()
	_, err := s.Load(path)
	require.NoError(t, err)

	os.WriteFile(path, []byte("max_qp_per_process = 20\n"), 0644)

	cfg, err := s.Reload()
	require.NoError(t, err)
	assert.Equal(t, uint32(20), cfg.MaxQPPerProcess)
	assert.Equal(t, cfg, s.Current())
}
