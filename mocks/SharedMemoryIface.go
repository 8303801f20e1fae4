// Hand-written mock in the shape of mockery v1.0.0 output.

package mocks

import (
	domain "github.com/rdma-intercept/rdma-intercept/domain"
	mock "github.com/stretchr/testify/mock"
)

// SharedMemoryIface is a mock type for the SharedMemoryIface type
type SharedMemoryIface struct {
	mock.Mock
}

func (_m *SharedMemoryIface) GetGlobal() domain.ResourceUsage {
	ret := _m.Called()
	return ret.Get(0).(domain.ResourceUsage)
}

func (_m *SharedMemoryIface) GetProcess(pid int32) domain.ResourceUsage {
	ret := _m.Called(pid)
	return ret.Get(0).(domain.ResourceUsage)
}

func (_m *SharedMemoryIface) UpdateGlobal(u domain.ResourceUsage) error {
	ret := _m.Called(u)
	return ret.Error(0)
}

func (_m *SharedMemoryIface) UpdateProcess(pid int32, u domain.ResourceUsage) error {
	ret := _m.Called(pid, u)
	return ret.Error(0)
}

func (_m *SharedMemoryIface) SetGlobalLimits(maxQP, maxMR uint32, maxMemory uint64) error {
	ret := _m.Called(maxQP, maxMR, maxMemory)
	return ret.Error(0)
}

func (_m *SharedMemoryIface) Version() uint64 {
	ret := _m.Called()
	return ret.Get(0).(uint64)
}

func (_m *SharedMemoryIface) Close() error {
	ret := _m.Called()
	return ret.Error(0)
}

// FreeProcess is not part of domain.SharedMemoryIface but is exercised by
// coordinator through a local type assertion, mirroring the concrete
// shmem.Region; mocks used in coordinator tests implement it too.
func (_m *SharedMemoryIface) FreeProcess(pid int32) {
	_m.Called(pid)
}

// Limits is the same story as FreeProcess: exercised via a narrower
// optional interface by ipc.limitsOf / interpose.globalCaps.
func (_m *SharedMemoryIface) Limits() (uint32, uint32, uint64) {
	ret := _m.Called()
	return ret.Get(0).(uint32), ret.Get(1).(uint32), ret.Get(2).(uint64)
}
