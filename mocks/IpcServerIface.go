// Hand-written mock in the shape of mockery v1.0.0 output.

package mocks

import (
	mock "github.com/stretchr/testify/mock"
)

// IpcServerIface is a mock type for the IpcServerIface type
type IpcServerIface struct {
	mock.Mock
}

func (_m *IpcServerIface) Serve() error {
	ret := _m.Called()
	return ret.Error(0)
}

func (_m *IpcServerIface) Close() error {
	ret := _m.Called()
	return ret.Error(0)
}
