package accountant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rdma-intercept/rdma-intercept/accountant"
)

func TestLocalAccountantQPLifecycle(t *testing.T) {
	a := accountant.New()

	assert.Equal(t, uint32(1), a.IncQP())
	assert.Equal(t, uint32(2), a.IncQP())
	assert.Equal(t, uint32(1), a.DecQP())
	assert.Equal(t, uint32(0), a.DecQP())

	// Saturates at zero rather than wrapping.
	assert.Equal(t, uint32(0), a.DecQP())
}

func TestLocalAccountantMRLifecycle(t *testing.T) {
	a := accountant.New()

	mr, mem := a.IncMR(4096)
	assert.Equal(t, uint32(1), mr)
	assert.Equal(t, uint64(4096), mem)

	mr, mem = a.IncMR(8192)
	assert.Equal(t, uint32(2), mr)
	assert.Equal(t, uint64(12288), mem)

	mr, mem = a.DecMR(8192)
	assert.Equal(t, uint32(1), mr)
	assert.Equal(t, uint64(4096), mem)
}

func TestLocalAccountantDecMRSaturatesAtZero(t *testing.T) {
	a := accountant.New()
	a.IncMR(100)

	mr, mem := a.DecMR(10000)
	assert.Equal(t, uint32(0), mr)
	assert.Equal(t, uint64(0), mem)
}

func TestLocalAccountantSnapshot(t *testing.T) {
	a := accountant.New()
	a.IncQP()
	a.IncMR(512)

	snap := a.Snapshot()
	assert.Equal(t, uint32(1), snap.QPCount)
	assert.Equal(t, uint32(1), snap.MRCount)
	assert.Equal(t, uint64(512), snap.MemoryUsed)
}
