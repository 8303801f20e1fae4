package shmem_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/shmem"
)

func testRegionName(t *testing.T) string {
	t.Helper()
	name := fmt.Sprintf("rdma_intercept_test_%d_%s", os.Getpid(), t.Name())
	t.Cleanup(func() {
		os.Remove("/dev/shm/" + name)
	})
	return name
}

func TestInitCreatesRegionWithDefaultCaps(t *testing.T) {
	r, err := shmem.Init(testRegionName(t), 1000, 10000, 1<<40)
	require.NoError(t, err)
	defer r.Close()

	maxQP, maxMR, maxMemory := r.Limits()
	assert.Equal(t, uint32(1000), maxQP)
	assert.Equal(t, uint32(10000), maxMR)
	assert.Equal(t, uint64(1<<40), maxMemory)
}

func TestUpdateAndGetProcess(t *testing.T) {
	r, err := shmem.Init(testRegionName(t), 1000, 10000, 1<<40)
	require.NoError(t, err)
	defer r.Close()

	usage := domain.ResourceUsage{QPCount: 3, MRCount: 1, MemoryUsed: 4096}
	require.NoError(t, r.UpdateProcess(42, usage))

	got := r.GetProcess(42)
	assert.Equal(t, usage, got)

	// Absent pid returns a zero value, not an error.
	assert.True(t, r.GetProcess(4242).IsZero())
}

func TestUpdateProcessTableFull(t *testing.T) {
	r, err := shmem.Init(testRegionName(t), 1000, 10000, 1<<40)
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < domain.MaxProcessSlots; i++ {
		require.NoError(t, r.UpdateProcess(int32(i+1), domain.ResourceUsage{QPCount: 1}))
	}

	err = r.UpdateProcess(int32(domain.MaxProcessSlots+1), domain.ResourceUsage{QPCount: 1})
	require.Error(t, err)
	var tableFull *domain.TableFullError
	assert.ErrorAs(t, err, &tableFull)
}

func TestFreeProcessReleasesSlot(t *testing.T) {
	r, err := shmem.Init(testRegionName(t), 1000, 10000, 1<<40)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.UpdateProcess(7, domain.ResourceUsage{QPCount: 2}))
	r.FreeProcess(7)

	assert.True(t, r.GetProcess(7).IsZero())
}

func TestVersionBumpsOnWrite(t *testing.T) {
	r, err := shmem.Init(testRegionName(t), 1000, 10000, 1<<40)
	require.NoError(t, err)
	defer r.Close()

	before := r.Version()
	require.NoError(t, r.UpdateGlobal(domain.ResourceUsage{QPCount: 1}))
	assert.Greater(t, r.Version(), before)
}
