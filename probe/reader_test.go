package probe_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdma-intercept/rdma-intercept/probe"
)

func writeRecords(t *testing.T, path string, recs map[uint32][3]uint64) {
	t.Helper()
	buf := make([]byte, 0, len(recs)*20)
	for key, v := range recs {
		rec := make([]byte, 20)
		binary.LittleEndian.PutUint32(rec[0:4], key)
		binary.LittleEndian.PutUint32(rec[4:8], uint32(v[0]))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(v[1]))
		binary.LittleEndian.PutUint64(rec[12:20], v[2])
		buf = append(buf, rec...)
	}
	require.NoError(t, os.WriteFile(path, buf, 0644))
}

func TestReadGlobal(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, filepath.Join(dir, "global_resources"), map[uint32][3]uint64{
		0: {5, 10, 4096},
	})

	r := probe.NewFileReader(dir)
	u, err := r.ReadGlobal()

	require.NoError(t, err)
	assert.Equal(t, uint32(5), u.QPCount)
	assert.Equal(t, uint32(10), u.MRCount)
	assert.Equal(t, uint64(4096), u.MemoryUsed)
}

func TestReadGlobalMissingFileReportsNotPresent(t *testing.T) {
	r := probe.NewFileReader(t.TempDir())

	u, err := r.ReadGlobal()
	assert.ErrorIs(t, err, probe.ErrMapNotPresent)
	assert.True(t, u.IsZero())
}

func TestReadProcess(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, filepath.Join(dir, "process_resources"), map[uint32][3]uint64{
		42: {2, 3, 8192},
		43: {0, 0, 0},
	})

	r := probe.NewFileReader(dir)

	u, ok, err := r.ReadProcess(42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), u.QPCount)

	_, ok, err = r.ReadProcess(999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadAllProcesses(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, filepath.Join(dir, "process_resources"), map[uint32][3]uint64{
		1: {1, 1, 1},
		2: {2, 2, 2},
	})

	r := probe.NewFileReader(dir)
	all, err := r.ReadAllProcesses()

	require.NoError(t, err)
	assert.Len(t, all, 2)
}
