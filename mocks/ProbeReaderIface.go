// Hand-written mock in the shape of mockery v1.0.0 output.

package mocks

import (
	domain "github.com/rdma-intercept/rdma-intercept/domain"
	mock "github.com/stretchr/testify/mock"
)

// ProbeReaderIface is a mock type for the ProbeReaderIface type
type ProbeReaderIface struct {
	mock.Mock
}

func (_m *ProbeReaderIface) ReadGlobal() (domain.ResourceUsage, error) {
	ret := _m.Called()
	return ret.Get(0).(domain.ResourceUsage), ret.Error(1)
}

func (_m *ProbeReaderIface) ReadProcess(pid uint32) (domain.ResourceUsage, bool, error) {
	ret := _m.Called(pid)
	return ret.Get(0).(domain.ResourceUsage), ret.Get(1).(bool), ret.Error(2)
}

func (_m *ProbeReaderIface) ReadAllProcesses() (map[uint32]domain.ResourceUsage, error) {
	ret := _m.Called()
	var m map[uint32]domain.ResourceUsage
	if ret.Get(0) != nil {
		m = ret.Get(0).(map[uint32]domain.ResourceUsage)
	}
	return m, ret.Error(1)
}
