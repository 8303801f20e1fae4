package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/mocks"
	"github.com/rdma-intercept/rdma-intercept/probe"
)

func newTestDaemon(smr domain.SharedMemoryIface, probe domain.ProbeReaderIface) *Daemon {
	return &Daemon{
		smr:      smr,
		probe:    probe,
		ipc:      new(mocks.IpcServerIface),
		lastSeen: make(map[int32]time.Time),
		watched:  make(map[int32]bool),
	}
}

func TestSyncTickUpdatesGlobalAndProcessSlots(t *testing.T) {
	smr := new(mocks.SharedMemoryIface)
	smr.On("UpdateGlobal", domain.ResourceUsage{QPCount: 7}).Return(nil)
	smr.On("UpdateProcess", int32(42), domain.ResourceUsage{QPCount: 2}).Return(nil)

	probe := new(mocks.ProbeReaderIface)
	probe.On("ReadGlobal").Return(domain.ResourceUsage{QPCount: 7}, nil)
	probe.On("ReadAllProcesses").Return(map[uint32]domain.ResourceUsage{42: {QPCount: 2}}, nil)

	d := newTestDaemon(smr, probe)
	d.syncTick()

	smr.AssertExpectations(t)
	probe.AssertExpectations(t)

	d.mu.Lock()
	_, seen := d.lastSeen[42]
	d.mu.Unlock()
	assert.True(t, seen)
}

func TestSyncTickSurvivesProbeReadGlobalError(t *testing.T) {
	smr := new(mocks.SharedMemoryIface)
	probe := new(mocks.ProbeReaderIface)
	probe.On("ReadGlobal").Return(domain.ResourceUsage{}, assertErr)
	probe.On("ReadAllProcesses").Return(map[uint32]domain.ResourceUsage{}, nil)

	d := newTestDaemon(smr, probe)
	d.syncTick()

	smr.AssertNotCalled(t, "UpdateGlobal")
}

func TestSyncTickTreatsMapNotPresentAsZeroesNotFailure(t *testing.T) {
	smr := new(mocks.SharedMemoryIface)
	smr.On("UpdateGlobal", domain.ResourceUsage{}).Return(nil)

	p := new(mocks.ProbeReaderIface)
	p.On("ReadGlobal").Return(domain.ResourceUsage{}, probe.ErrMapNotPresent)
	p.On("ReadAllProcesses").Return(map[uint32]domain.ResourceUsage{}, probe.ErrMapNotPresent)

	d := newTestDaemon(smr, p)
	d.syncTick()

	smr.AssertExpectations(t)
	assert.True(t, d.warnedGlobalMissing)
	assert.True(t, d.warnedProcessMissing)
}

func TestSweepTickToleratesMapNotPresent(t *testing.T) {
	smr := new(mocks.SharedMemoryIface)
	smr.On("FreeProcess", int32(7)).Return()

	p := new(mocks.ProbeReaderIface)
	p.On("ReadAllProcesses").Return(map[uint32]domain.ResourceUsage{}, probe.ErrMapNotPresent)

	d := newTestDaemon(smr, p)
	d.lastSeen[7] = time.Now().Add(-(sweepGrace + time.Second))

	d.sweepTick()

	smr.AssertExpectations(t)
}

func TestSweepTickReclaimsStaleSlotsPastGrace(t *testing.T) {
	smr := new(mocks.SharedMemoryIface)
	smr.On("FreeProcess", int32(7)).Return()

	probe := new(mocks.ProbeReaderIface)
	probe.On("ReadAllProcesses").Return(map[uint32]domain.ResourceUsage{}, nil)

	d := newTestDaemon(smr, probe)
	d.lastSeen[7] = time.Now().Add(-(sweepGrace + time.Second))

	d.sweepTick()

	smr.AssertExpectations(t)
	_, stillTracked := d.lastSeen[7]
	assert.False(t, stillTracked)
}

func TestSweepTickSparesSlotsStillReportedByProbe(t *testing.T) {
	smr := new(mocks.SharedMemoryIface)

	probe := new(mocks.ProbeReaderIface)
	probe.On("ReadAllProcesses").Return(map[uint32]domain.ResourceUsage{7: {QPCount: 1}}, nil)

	d := newTestDaemon(smr, probe)
	d.lastSeen[7] = time.Now().Add(-(sweepGrace + time.Second))

	d.sweepTick()

	smr.AssertNotCalled(t, "FreeProcess", int32(7))
}

func TestSweepTickSparesSlotsWithinGrace(t *testing.T) {
	smr := new(mocks.SharedMemoryIface)

	probe := new(mocks.ProbeReaderIface)
	probe.On("ReadAllProcesses").Return(map[uint32]domain.ResourceUsage{}, nil)

	d := newTestDaemon(smr, probe)
	d.lastSeen[7] = time.Now()

	d.sweepTick()

	smr.AssertNotCalled(t, "FreeProcess", int32(7))
}

func TestReclaimDeletesTrackingState(t *testing.T) {
	smr := new(mocks.SharedMemoryIface)
	smr.On("FreeProcess", int32(9)).Return()

	d := newTestDaemon(smr, new(mocks.ProbeReaderIface))
	d.lastSeen[9] = time.Now()
	d.watched[9] = true

	d.reclaim(9)

	smr.AssertExpectations(t)
	_, seen := d.lastSeen[9]
	_, watched := d.watched[9]
	assert.False(t, seen)
	assert.False(t, watched)
}

var assertErr = &testError{"probe read failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
