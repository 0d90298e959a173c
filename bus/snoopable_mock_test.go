package bus

import (
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"

	"github.com/example/meshisim/core"
)

// MockSnoopable is a hand-written stand-in for what `mockgen` would emit
// for the Snoopable interface, used to unit-test Bus.broadcast's
// accounting in isolation from a real cache.Cache (grounded on akita's
// sim/port_test.go gomock usage).
type MockSnoopable struct {
	ctrl     *gomock.Controller
	recorder *MockSnoopableMockRecorder
}

type MockSnoopableMockRecorder struct {
	mock *MockSnoopable
}

func NewMockSnoopable(ctrl *gomock.Controller) *MockSnoopable {
	m := &MockSnoopable{ctrl: ctrl}
	m.recorder = &MockSnoopableMockRecorder{mock: m}
	return m
}

func (m *MockSnoopable) EXPECT() *MockSnoopableMockRecorder {
	return m.recorder
}

func (m *MockSnoopable) Owner() core.PEID {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Owner")
	return ret[0].(core.PEID)
}

func (mr *MockSnoopableMockRecorder) Owner() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Owner", reflect.TypeOf((*MockSnoopable)(nil).Owner))
}

func (m *MockSnoopable) Snoop(req core.BusRequest) SnoopResult {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Snoop", req)
	return ret[0].(SnoopResult)
}

func (mr *MockSnoopableMockRecorder) Snoop(req any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Snoop", reflect.TypeOf((*MockSnoopable)(nil).Snoop), req)
}

func (m *MockSnoopable) AccountBusBytes(n uint64) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "AccountBusBytes", n)
}

func (mr *MockSnoopableMockRecorder) AccountBusBytes(n any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AccountBusBytes", reflect.TypeOf((*MockSnoopable)(nil).AccountBusBytes), n)
}
