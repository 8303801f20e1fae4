package interpose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdma-intercept/rdma-intercept/accountant"
	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/mocks"
)

// fakeLimiter lets each test pin the soft ceiling directly rather than
// exercising limiter's own rate-limiting window.
type fakeLimiter struct{ ceiling uint32 }

func (f fakeLimiter) SoftCeiling(domain.ResourceUsage, uint32) uint32 { return f.ceiling }

func testHandle(cfg *domain.PolicyConfig, smr domain.SharedMemoryIface, ceiling uint32) *Handle {
	return &Handle{
		cfg:     cfg,
		la:      accountant.New(),
		dl:      fakeLimiter{ceiling: ceiling},
		smr:     smr,
		pid:     1234,
		enabled: true,
	}
}

func TestHandlePassthroughOnlyWhenInterceptDisabled(t *testing.T) {
	disabled := &Handle{enabled: false}
	assert.True(t, disabled.passthroughOnly())

	enabled := &Handle{enabled: true}
	assert.False(t, enabled.passthroughOnly())
}

func TestAdmitCreateQPDisabledPolicyAlwaysAllows(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	cfg.EnableQPControl = false
	h := testHandle(cfg, nil, 200)

	src, err := h.admitCreateQP(QPCreateRequest{Type: domain.QPTypeOther})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLocal, src)
}

func TestAdmitCreateQPRejectsDisallowedType(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	cfg.EnableQPControl = true
	h := testHandle(cfg, nil, 200)

	_, err := h.admitCreateQP(QPCreateRequest{Type: domain.QPTypeOther})
	assert.ErrorIs(t, err, ErrAdmissionDenied)
}

func TestAdmitCreateQPRejectsExcessiveWR(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	cfg.EnableQPControl = true
	h := testHandle(cfg, nil, 200)

	_, err := h.admitCreateQP(QPCreateRequest{Type: domain.QPTypeRC, MaxSendWR: cfg.MaxSendWRLimit + 1})
	assert.ErrorIs(t, err, ErrAdmissionDenied)
}

func TestAdmitCreateQPUsesSMRWhenAvailable(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	cfg.EnableQPControl = true

	smr := new(mocks.SharedMemoryIface)
	smr.On("GetProcess", int32(1234)).Return(domain.ResourceUsage{QPCount: 5})
	smr.On("GetGlobal").Return(domain.ResourceUsage{QPCount: 5})
	smr.On("Limits").Return(uint32(1000), uint32(10000), uint64(1<<40))

	h := testHandle(cfg, smr, 200)

	src, err := h.admitCreateQP(QPCreateRequest{Type: domain.QPTypeRC})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceSMR, src)
	smr.AssertExpectations(t)
}

func TestAdmitCreateQPDeniedByDynamicLimiter(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	cfg.EnableQPControl = true

	smr := new(mocks.SharedMemoryIface)
	smr.On("GetProcess", int32(1234)).Return(domain.ResourceUsage{QPCount: 50})
	smr.On("GetGlobal").Return(domain.ResourceUsage{QPCount: 900})
	smr.On("Limits").Return(uint32(1000), uint32(10000), uint64(1<<40))

	h := testHandle(cfg, smr, 50) // ceiling already met

	_, err := h.admitCreateQP(QPCreateRequest{Type: domain.QPTypeRC})
	assert.ErrorIs(t, err, ErrAdmissionDenied)
}

func TestAdmitCreateQPDeniedByPerProcessCap(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	cfg.EnableQPControl = true
	cfg.MaxQPPerProcess = 10

	smr := new(mocks.SharedMemoryIface)
	smr.On("GetProcess", int32(1234)).Return(domain.ResourceUsage{QPCount: 10})
	smr.On("GetGlobal").Return(domain.ResourceUsage{QPCount: 10})
	smr.On("Limits").Return(uint32(1000), uint32(10000), uint64(1<<40))

	h := testHandle(cfg, smr, 200)

	_, err := h.admitCreateQP(QPCreateRequest{Type: domain.QPTypeRC})
	assert.ErrorIs(t, err, ErrAdmissionDenied)
}

func TestAdmitCreateQPDeniedByGlobalCap(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	cfg.EnableQPControl = true

	smr := new(mocks.SharedMemoryIface)
	smr.On("GetProcess", int32(1234)).Return(domain.ResourceUsage{QPCount: 1})
	smr.On("GetGlobal").Return(domain.ResourceUsage{QPCount: 1000})
	smr.On("Limits").Return(uint32(1000), uint32(10000), uint64(1<<40))

	h := testHandle(cfg, smr, 200)

	_, err := h.admitCreateQP(QPCreateRequest{Type: domain.QPTypeRC})
	assert.ErrorIs(t, err, ErrAdmissionDenied)
}

func TestAdmitRegMRDisabledPolicyAlwaysAllows(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	cfg.EnableMRControl = false
	h := testHandle(cfg, nil, 200)

	src, err := h.admitRegMR(1 << 30)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLocal, src)
}

func TestAdmitRegMRDeniedByPerProcessMemoryCap(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	cfg.EnableMRControl = true
	cfg.MaxMemoryPerProcess = 1024

	smr := new(mocks.SharedMemoryIface)
	smr.On("GetProcess", int32(1234)).Return(domain.ResourceUsage{MRCount: 1, MemoryUsed: 512})

	h := testHandle(cfg, smr, 200)

	_, err := h.admitRegMR(1024)
	assert.ErrorIs(t, err, ErrAdmissionDenied)
}

func TestAdmitRegMRDeniedByGlobalMemoryCap(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	cfg.EnableMRControl = true

	smr := new(mocks.SharedMemoryIface)
	smr.On("GetProcess", int32(1234)).Return(domain.ResourceUsage{})
	smr.On("GetGlobal").Return(domain.ResourceUsage{MemoryUsed: 1 << 40})
	smr.On("Limits").Return(uint32(1000), uint32(10000), uint64(1<<40))

	h := testHandle(cfg, smr, 200)

	_, err := h.admitRegMR(4096)
	assert.ErrorIs(t, err, ErrAdmissionDenied)
}

func TestProcessUsageFallsBackToLocalAccountant(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	h := testHandle(cfg, nil, 200)
	h.la.IncQP()

	usage, src := h.processUsage()
	assert.Equal(t, domain.SourceLocal, src)
	assert.Equal(t, uint32(1), usage.QPCount)
}

func TestRecordQPCreatedPushesSnapshotToSMR(t *testing.T) {
	cfg := domain.DefaultPolicyConfig()
	smr := new(mocks.SharedMemoryIface)
	smr.On("UpdateProcess", int32(1234), domain.ResourceUsage{QPCount: 1}).Return(nil)

	h := testHandle(cfg, smr, 200)
	h.recordQPCreated()

	smr.AssertExpectations(t)
}
