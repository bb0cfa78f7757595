// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package regsim

import (
	"encoding/binary"
	"errors"
	"testing"
)

// boundRouter returns a router with the default store binding plus the store
// behind it, for inspecting dispatch side effects.
func boundRouter(t *testing.T) (*Router, *Store) {
	t.Helper()
	store := NewStore()
	router := NewRouter()
	window, err := NewWindow(DefaultWindowStart, DefaultWindowEnd)
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}
	if err := BindStore(router, store, DefaultUnitID, window); err != nil {
		t.Fatalf("BindStore failed: %v", err)
	}
	return router, store
}

func expectException(t *testing.T, pdu []byte, fc FunctionCode, ec ExceptionCode) {
	t.Helper()
	if !IsExceptionPDU(pdu) {
		t.Fatalf("Expected exception PDU, got % X", pdu)
	}
	if len(pdu) != 2 {
		t.Fatalf("Exception PDU must be 2 bytes, got %d", len(pdu))
	}
	if pdu[0] != byte(fc)|0x80 {
		t.Errorf("Exception function: expected %02X, got %02X", byte(fc)|0x80, pdu[0])
	}
	if ExceptionCode(pdu[1]) != ec {
		t.Errorf("Exception code: expected %v, got %v", ec, ExceptionCode(pdu[1]))
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{Start: 10, End: 19}

	tests := []struct {
		addr, qty uint16
		want      bool
	}{
		{10, 1, true},
		{10, 10, true},
		{19, 1, true},
		{9, 1, false},
		{9, 2, false},
		{15, 6, false}, // runs past 19
		{20, 1, false},
		{10, 0, false}, // zero quantity never matches
	}
	for _, tt := range tests {
		if got := w.Contains(tt.addr, tt.qty); got != tt.want {
			t.Errorf("Contains(%d, %d): expected %v, got %v", tt.addr, tt.qty, tt.want, got)
		}
	}

	// Address arithmetic must not wrap around 65535
	full := Window{Start: 0, End: 65535}
	if !full.Contains(65535, 1) {
		t.Error("Contains(65535, 1) should be true for the full window")
	}
	if (Window{Start: 0, End: 100}).Contains(65535, 2) {
		t.Error("Span wrapping past 65535 must not be contained")
	}
}

func TestNewWindowInverted(t *testing.T) {
	if _, err := NewWindow(10, 5); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow, got %v", err)
	}
}

func TestRouterOverlapDetection(t *testing.T) {
	store := NewStore()
	router := NewRouter()

	first := Route{
		Unit: 1, Func: FuncReadHoldingRegisters,
		Window:    Window{Start: 0, End: 49},
		ReadWords: store.HoldingRegisters,
	}
	if err := router.Handle(first); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	// Same unit and function code, overlapping window: rejected at registration
	overlapping := first
	overlapping.Window = Window{Start: 40, End: 60}
	if err := router.Handle(overlapping); !errors.Is(err, ErrRouteConflict) {
		t.Errorf("Expected ErrRouteConflict, got %v", err)
	}

	// Adjacent window is fine
	adjacent := first
	adjacent.Window = Window{Start: 50, End: 99}
	if err := router.Handle(adjacent); err != nil {
		t.Errorf("Adjacent window should register: %v", err)
	}

	// Same window under a different function code is fine: each function
	// code addresses its own bank
	otherFC := Route{
		Unit: 1, Func: FuncReadInputRegisters,
		Window:    Window{Start: 0, End: 49},
		ReadWords: store.InputRegisters,
	}
	if err := router.Handle(otherFC); err != nil {
		t.Errorf("Cross-function overlap should register: %v", err)
	}

	// Same window for another unit is fine too
	otherUnit := first
	otherUnit.Unit = 2
	if err := router.Handle(otherUnit); err != nil {
		t.Errorf("Cross-unit overlap should register: %v", err)
	}
}

func TestRouterHandlerKindMismatch(t *testing.T) {
	store := NewStore()
	router := NewRouter()

	// Bit handler on a register function code
	err := router.Handle(Route{
		Unit: 1, Func: FuncReadHoldingRegisters,
		Window:   Window{Start: 0, End: 9},
		ReadBits: store.Coils,
	})
	if err == nil {
		t.Error("ReadBits handler on FC03 should be rejected")
	}

	// No handler at all
	err = router.Handle(Route{
		Unit: 1, Func: FuncReadCoils,
		Window: Window{Start: 0, End: 9},
	})
	if err == nil {
		t.Error("Route without a handler should be rejected")
	}

	// Two handlers
	err = router.Handle(Route{
		Unit: 1, Func: FuncReadCoils,
		Window:    Window{Start: 0, End: 9},
		ReadBits:  store.Coils,
		ReadWords: store.HoldingRegisters,
	})
	if err == nil {
		t.Error("Route with two handlers should be rejected")
	}
}

func TestRouterSealsOnDispatch(t *testing.T) {
	router, _ := boundRouter(t)

	pdu, _ := BuildReadCoilsPDU(0, 1)
	router.Dispatch(DefaultUnitID, pdu)

	store := NewStore()
	err := router.Handle(Route{
		Unit: 2, Func: FuncReadCoils,
		Window:   Window{Start: 0, End: 9},
		ReadBits: store.Coils,
	})
	if !errors.Is(err, ErrRouterSealed) {
		t.Errorf("Expected ErrRouterSealed after first dispatch, got %v", err)
	}
}

func TestDispatchUnknownUnit(t *testing.T) {
	router, _ := boundRouter(t)

	pdu, _ := BuildReadHoldingRegistersPDU(0, 1)
	resp := router.Dispatch(9, pdu)
	expectException(t, resp, FuncReadHoldingRegisters, ExceptionGatewayTargetFailed)
}

func TestDispatchUnboundFunction(t *testing.T) {
	store := NewStore()
	router := NewRouter()
	// Only FC01 registered
	if err := router.Handle(Route{
		Unit: 1, Func: FuncReadCoils,
		Window:   Window{Start: 0, End: 49},
		ReadBits: store.Coils,
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	pdu, _ := BuildReadHoldingRegistersPDU(0, 1)
	resp := router.Dispatch(1, pdu)
	expectException(t, resp, FuncReadHoldingRegisters, ExceptionIllegalFunction)

	// Unsupported function code altogether
	resp = router.Dispatch(1, []byte{0x2B, 0x00})
	expectException(t, resp, 0x2B, ExceptionIllegalFunction)
}

func TestDispatchOutOfWindow(t *testing.T) {
	router, store := boundRouter(t)

	// Read starting in-window but running past the end: rejected whole
	pdu, _ := BuildReadHoldingRegistersPDU(48, 5)
	resp := router.Dispatch(DefaultUnitID, pdu)
	expectException(t, resp, FuncReadHoldingRegisters, ExceptionIllegalDataAddress)

	// Write running past the end: rejected before any register changes
	wpdu, _ := BuildWriteMultipleRegistersPDU(48, []uint16{1, 2, 3})
	resp = router.Dispatch(DefaultUnitID, wpdu)
	expectException(t, resp, FuncWriteMultipleRegisters, ExceptionIllegalDataAddress)
	if store.HoldingRegister(48) != 0 || store.HoldingRegister(49) != 0 {
		t.Error("Rejected write must not modify any register")
	}

	// Entirely outside
	pdu, _ = BuildReadCoilsPDU(50, 1)
	resp = router.Dispatch(DefaultUnitID, pdu)
	expectException(t, resp, FuncReadCoils, ExceptionIllegalDataAddress)
}

func TestDispatchQuantityBounds(t *testing.T) {
	router, _ := boundRouter(t)

	// Zero quantity
	raw := []byte{byte(FuncReadHoldingRegisters), 0x00, 0x00, 0x00, 0x00}
	resp := router.Dispatch(DefaultUnitID, raw)
	expectException(t, resp, FuncReadHoldingRegisters, ExceptionIllegalDataValue)

	// Over the protocol limit for registers
	raw = []byte{byte(FuncReadHoldingRegisters), 0x00, 0x00, 0x00, 0x7E} // 126
	resp = router.Dispatch(DefaultUnitID, raw)
	expectException(t, resp, FuncReadHoldingRegisters, ExceptionIllegalDataValue)

	// Truncated PDU
	resp = router.Dispatch(DefaultUnitID, []byte{byte(FuncReadCoils), 0x00})
	expectException(t, resp, FuncReadCoils, ExceptionIllegalDataValue)

	// FC15 byte count disagreeing with quantity
	raw = []byte{byte(FuncWriteMultipleCoils), 0x00, 0x00, 0x00, 0x09, 0x01, 0xFF}
	resp = router.Dispatch(DefaultUnitID, raw)
	expectException(t, resp, FuncWriteMultipleCoils, ExceptionIllegalDataValue)
}

func TestDispatchWriteSingleCoilValues(t *testing.T) {
	router, store := boundRouter(t)

	// 0xFF00 sets, 0x0000 clears, anything else is an illegal value
	resp := router.Dispatch(DefaultUnitID, BuildWriteSingleCoilPDU(3, true))
	if IsExceptionPDU(resp) {
		t.Fatalf("WriteSingleCoil on failed: % X", resp)
	}
	if !store.Coil(3) {
		t.Error("Coil[3] should be true")
	}

	resp = router.Dispatch(DefaultUnitID, BuildWriteSingleCoilPDU(3, false))
	if IsExceptionPDU(resp) {
		t.Fatalf("WriteSingleCoil off failed: % X", resp)
	}
	if store.Coil(3) {
		t.Error("Coil[3] should be false")
	}

	raw := []byte{byte(FuncWriteSingleCoil), 0x00, 0x03, 0x12, 0x34}
	resp = router.Dispatch(DefaultUnitID, raw)
	expectException(t, resp, FuncWriteSingleCoil, ExceptionIllegalDataValue)
}

func TestDispatchEchoResponses(t *testing.T) {
	router, _ := boundRouter(t)

	// FC05/FC06 echo the request
	req := BuildWriteSingleRegisterPDU(7, 4242)
	resp := router.Dispatch(DefaultUnitID, req)
	if len(resp) != 5 {
		t.Fatalf("FC06 response length: expected 5, got %d", len(resp))
	}
	for i := range req {
		if resp[i] != req[i] {
			t.Errorf("FC06 echo byte[%d]: expected %02X, got %02X", i, req[i], resp[i])
		}
	}

	// FC16 responds with address and quantity
	wpdu, _ := BuildWriteMultipleRegistersPDU(10, []uint16{1, 2, 3})
	resp = router.Dispatch(DefaultUnitID, wpdu)
	if len(resp) != 5 {
		t.Fatalf("FC16 response length: expected 5, got %d", len(resp))
	}
	if addr := binary.BigEndian.Uint16(resp[1:3]); addr != 10 {
		t.Errorf("FC16 response address: expected 10, got %d", addr)
	}
	if qty := binary.BigEndian.Uint16(resp[3:5]); qty != 3 {
		t.Errorf("FC16 response quantity: expected 3, got %d", qty)
	}
}

func TestDispatchReadWriteRoundTrip(t *testing.T) {
	router, store := boundRouter(t)

	wpdu, _ := BuildWriteMultipleRegistersPDU(10, []uint16{100, 200, 300})
	if resp := router.Dispatch(DefaultUnitID, wpdu); IsExceptionPDU(resp) {
		t.Fatalf("Write failed: % X", resp)
	}

	rpdu, _ := BuildReadHoldingRegistersPDU(10, 3)
	resp := router.Dispatch(DefaultUnitID, rpdu)
	values, err := ParseRegistersResponse(resp, 3)
	if err != nil {
		t.Fatalf("ParseRegistersResponse failed: %v", err)
	}
	for i, want := range []uint16{100, 200, 300} {
		if values[i] != want {
			t.Errorf("Register[%d]: expected %d, got %d", 10+i, want, values[i])
		}
	}

	// Coils via FC15 then FC01
	coilValues := []bool{true, false, true, true, false, false, true}
	cpdu, _ := BuildWriteMultipleCoilsPDU(0, coilValues)
	if resp := router.Dispatch(DefaultUnitID, cpdu); IsExceptionPDU(resp) {
		t.Fatalf("WriteMultipleCoils failed: % X", resp)
	}
	rpdu, _ = BuildReadCoilsPDU(0, 7)
	resp = router.Dispatch(DefaultUnitID, rpdu)
	coils, err := ParseCoilsResponse(resp, 7)
	if err != nil {
		t.Fatalf("ParseCoilsResponse failed: %v", err)
	}
	for i, want := range coilValues {
		if coils[i] != want {
			t.Errorf("Coil[%d]: expected %v, got %v", i, want, coils[i])
		}
	}

	// FC05/FC15 write the coil bank, not the discrete inputs
	if store.DiscreteInput(0) {
		t.Error("Coil writes must not touch discrete inputs")
	}
}

func TestDispatchEmptyPDU(t *testing.T) {
	router, _ := boundRouter(t)
	resp := router.Dispatch(DefaultUnitID, nil)
	if !IsExceptionPDU(resp) {
		t.Fatalf("Empty PDU should yield an exception, got % X", resp)
	}
}

func TestRoutesReturnsCopy(t *testing.T) {
	router, _ := boundRouter(t)

	routes := router.Routes()
	if len(routes) != 8 {
		t.Fatalf("Expected 8 routes, got %d", len(routes))
	}
	routes[0].Unit = 99

	if router.Routes()[0].Unit == 99 {
		t.Error("Routes must return a copy of the table")
	}
}
