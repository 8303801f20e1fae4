package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rdma-intercept/rdma-intercept/domain"
)

func TestResourceUsageAdd(t *testing.T) {
	u := domain.ResourceUsage{QPCount: 1, MRCount: 2, MemoryUsed: 100}
	sum := u.Add(domain.ResourceUsage{QPCount: 3, MRCount: 4, MemoryUsed: 50})

	assert.Equal(t, uint32(4), sum.QPCount)
	assert.Equal(t, uint32(6), sum.MRCount)
	assert.Equal(t, uint64(150), sum.MemoryUsed)

	// Add must not mutate the receiver.
	assert.Equal(t, uint32(1), u.QPCount)
}

func TestResourceUsageIsZero(t *testing.T) {
	assert.True(t, domain.ResourceUsage{}.IsZero())
	assert.False(t, domain.ResourceUsage{QPCount: 1}.IsZero())
}

func TestQPTypeString(t *testing.T) {
	tests := []struct {
		qt   domain.QPType
		want string
	}{
		{domain.QPTypeRC, "RC"},
		{domain.QPTypeUC, "UC"},
		{domain.QPTypeUD, "UD"},
		{domain.QPTypeOther, "OTHER"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.qt.String())
	}
}

func TestProcessSlotFree(t *testing.T) {
	assert.True(t, domain.ProcessSlot{}.Free())
	assert.False(t, domain.ProcessSlot{PID: 42}.Free())
}
