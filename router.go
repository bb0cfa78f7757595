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
	"fmt"
	"sync/atomic"
)

// Window is an inclusive, contiguous range of register addresses a route
// is allowed to serve.
type Window struct {
	Start uint16
	End   uint16
}

// NewWindow creates a window spanning start..end inclusive.
func NewWindow(start, end uint16) (Window, error) {
	if end < start {
		return Window{}, fmt.Errorf("%w: %d..%d", ErrInvalidWindow, start, end)
	}
	return Window{Start: start, End: end}, nil
}

// Contains reports whether the full span addr..addr+qty-1 lies inside the
// window. A zero quantity is never contained.
func (w Window) Contains(addr, qty uint16) bool {
	if qty == 0 {
		return false
	}
	last := uint32(addr) + uint32(qty) - 1
	return addr >= w.Start && last <= uint32(w.End)
}

// Overlaps reports whether two windows share any address.
func (w Window) Overlaps(o Window) bool {
	return w.Start <= o.End && o.Start <= w.End
}

// Route binds a (unit id, function code, address window) triple to exactly
// one handler. Precisely one handler field must be set, and it must match
// the function code: ReadBits for FC01/02, ReadWords for FC03/04, WriteBits
// for FC05/15, WriteWords for FC06/16. Single-value writes reach the
// handler as a one-element slice.
//
// Handlers carry no error return: the register store never fails, and the
// router rejects out-of-window and malformed requests before invoking them.
type Route struct {
	Unit   UnitID
	Func   FunctionCode
	Window Window

	ReadBits   func(addr, qty uint16) []bool
	WriteBits  func(addr uint16, values []bool)
	ReadWords  func(addr, qty uint16) []uint16
	WriteWords func(addr uint16, values []uint16)
}

func (rt Route) handlerKindOK() bool {
	set := 0
	if rt.ReadBits != nil {
		set++
	}
	if rt.WriteBits != nil {
		set++
	}
	if rt.ReadWords != nil {
		set++
	}
	if rt.WriteWords != nil {
		set++
	}
	if set != 1 {
		return false
	}
	switch rt.Func {
	case FuncReadCoils, FuncReadDiscreteInputs:
		return rt.ReadBits != nil
	case FuncReadHoldingRegisters, FuncReadInputRegisters:
		return rt.ReadWords != nil
	case FuncWriteSingleCoil, FuncWriteMultipleCoils:
		return rt.WriteBits != nil
	case FuncWriteSingleRegister, FuncWriteMultipleRegisters:
		return rt.WriteWords != nil
	default:
		return false
	}
}

// Router matches incoming requests against an immutable route table and
// invokes the bound handler. The table is built once at startup via Handle
// and seals itself on the first Dispatch; late registration is an error.
//
// Routes for the same unit and function code must not overlap. Routes for
// different function codes may share a window freely: each function code
// implicitly selects its own bank.
type Router struct {
	routes []Route
	sealed atomic.Bool
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Handle registers a route. It fails if the router is already dispatching,
// if the window is inverted, if the handler does not match the function
// code, or if the window overlaps an existing route for the same unit and
// function code. Overlap is a configuration error detected here, at
// startup, never at request time.
func (r *Router) Handle(rt Route) error {
	if r.sealed.Load() {
		return ErrRouterSealed
	}
	if rt.Window.End < rt.Window.Start {
		return fmt.Errorf("%w: %d..%d", ErrInvalidWindow, rt.Window.Start, rt.Window.End)
	}
	if !rt.handlerKindOK() {
		return fmt.Errorf("regsim: route for %s needs exactly one matching handler", rt.Func)
	}
	for _, existing := range r.routes {
		if existing.Unit == rt.Unit && existing.Func == rt.Func && existing.Window.Overlaps(rt.Window) {
			return fmt.Errorf("%w: unit %d %s windows %d..%d and %d..%d",
				ErrRouteConflict, rt.Unit, rt.Func,
				existing.Window.Start, existing.Window.End, rt.Window.Start, rt.Window.End)
		}
	}
	r.routes = append(r.routes, rt)
	return nil
}

// Routes returns a copy of the route table.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Dispatch resolves and executes the request PDU for the given unit and
// returns the response PDU, which is an exception response when matching or
// decoding fails. It never returns an empty slice.
func (r *Router) Dispatch(unit UnitID, pdu []byte) []byte {
	r.sealed.Store(true)

	if len(pdu) < 1 {
		return exceptionPDU(0, ExceptionIllegalFunction)
	}
	fc := FunctionCode(pdu[0])

	if !r.knowsUnit(unit) {
		return exceptionPDU(fc, ExceptionGatewayTargetFailed)
	}
	if !r.knowsFunction(unit, fc) {
		return exceptionPDU(fc, ExceptionIllegalFunction)
	}

	switch fc {
	case FuncReadCoils:
		return r.dispatchReadBits(unit, fc, pdu, MaxQuantityCoils)
	case FuncReadDiscreteInputs:
		return r.dispatchReadBits(unit, fc, pdu, MaxQuantityDiscreteInputs)
	case FuncReadHoldingRegisters, FuncReadInputRegisters:
		return r.dispatchReadWords(unit, fc, pdu)
	case FuncWriteSingleCoil:
		return r.dispatchWriteSingleCoil(unit, pdu)
	case FuncWriteSingleRegister:
		return r.dispatchWriteSingleRegister(unit, pdu)
	case FuncWriteMultipleCoils:
		return r.dispatchWriteMultipleCoils(unit, pdu)
	case FuncWriteMultipleRegisters:
		return r.dispatchWriteMultipleRegisters(unit, pdu)
	default:
		// knowsFunction only matches registered codes, so this is
		// unreachable for a well-formed table.
		return exceptionPDU(fc, ExceptionIllegalFunction)
	}
}

func (r *Router) knowsUnit(unit UnitID) bool {
	for _, rt := range r.routes {
		if rt.Unit == unit {
			return true
		}
	}
	return false
}

func (r *Router) knowsFunction(unit UnitID, fc FunctionCode) bool {
	for _, rt := range r.routes {
		if rt.Unit == unit && rt.Func == fc {
			return true
		}
	}
	return false
}

// match returns the unique route whose window fully contains the requested
// span. A request spanning two windows matches neither and is rejected by
// the caller as an illegal data address, never silently split.
func (r *Router) match(unit UnitID, fc FunctionCode, addr, qty uint16) (Route, bool) {
	for _, rt := range r.routes {
		if rt.Unit == unit && rt.Func == fc && rt.Window.Contains(addr, qty) {
			return rt, true
		}
	}
	return Route{}, false
}

func (r *Router) dispatchReadBits(unit UnitID, fc FunctionCode, pdu []byte, maxQty uint16) []byte {
	if len(pdu) < 5 {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])

	if qty < 1 || qty > maxQty {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}
	rt, ok := r.match(unit, fc, addr, qty)
	if !ok {
		return exceptionPDU(fc, ExceptionIllegalDataAddress)
	}

	values := rt.ReadBits(addr, qty)

	byteCount := (qty + 7) / 8
	resp := make([]byte, 2+byteCount)
	resp[0] = byte(fc)
	resp[1] = byte(byteCount)
	for i, v := range values {
		if v {
			resp[2+i/8] |= 1 << (i % 8)
		}
	}
	return resp
}

func (r *Router) dispatchReadWords(unit UnitID, fc FunctionCode, pdu []byte) []byte {
	if len(pdu) < 5 {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])

	if qty < 1 || qty > MaxQuantityRegisters {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}
	rt, ok := r.match(unit, fc, addr, qty)
	if !ok {
		return exceptionPDU(fc, ExceptionIllegalDataAddress)
	}

	values := rt.ReadWords(addr, qty)

	byteCount := qty * 2
	resp := make([]byte, 2+byteCount)
	resp[0] = byte(fc)
	resp[1] = byte(byteCount)
	for i, v := range values {
		binary.BigEndian.PutUint16(resp[2+i*2:], v)
	}
	return resp
}

func (r *Router) dispatchWriteSingleCoil(unit UnitID, pdu []byte) []byte {
	const fc = FuncWriteSingleCoil
	if len(pdu) < 5 {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	raw := binary.BigEndian.Uint16(pdu[3:5])

	var value bool
	switch raw {
	case CoilOn:
		value = true
	case CoilOff:
		value = false
	default:
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}

	rt, ok := r.match(unit, fc, addr, 1)
	if !ok {
		return exceptionPDU(fc, ExceptionIllegalDataAddress)
	}

	rt.WriteBits(addr, []bool{value})

	// Echo request as response (copy to avoid sharing the request slice).
	resp := make([]byte, 5)
	copy(resp, pdu[:5])
	return resp
}

func (r *Router) dispatchWriteSingleRegister(unit UnitID, pdu []byte) []byte {
	const fc = FuncWriteSingleRegister
	if len(pdu) < 5 {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	value := binary.BigEndian.Uint16(pdu[3:5])

	rt, ok := r.match(unit, fc, addr, 1)
	if !ok {
		return exceptionPDU(fc, ExceptionIllegalDataAddress)
	}

	rt.WriteWords(addr, []uint16{value})

	resp := make([]byte, 5)
	copy(resp, pdu[:5])
	return resp
}

func (r *Router) dispatchWriteMultipleCoils(unit UnitID, pdu []byte) []byte {
	const fc = FuncWriteMultipleCoils
	if len(pdu) < 6 {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])
	byteCount := int(pdu[5])

	if qty < 1 || qty > MaxQuantityCoils {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}
	expectedBytes := int((qty + 7) / 8)
	if byteCount != expectedBytes || len(pdu) < 6+byteCount {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}

	// Matching rejects before any write: the span is either fully inside
	// one window or the whole request fails.
	rt, ok := r.match(unit, fc, addr, qty)
	if !ok {
		return exceptionPDU(fc, ExceptionIllegalDataAddress)
	}

	values := make([]bool, qty)
	for i := uint16(0); i < qty; i++ {
		values[i] = (pdu[6+i/8] & (1 << (i % 8))) != 0
	}
	rt.WriteBits(addr, values)

	resp := make([]byte, 5)
	resp[0] = byte(fc)
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], qty)
	return resp
}

func (r *Router) dispatchWriteMultipleRegisters(unit UnitID, pdu []byte) []byte {
	const fc = FuncWriteMultipleRegisters
	if len(pdu) < 6 {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])
	byteCount := int(pdu[5])

	if qty < 1 || qty > MaxQuantityWriteRegisters {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}
	expectedBytes := int(qty * 2)
	if byteCount != expectedBytes || len(pdu) < 6+byteCount {
		return exceptionPDU(fc, ExceptionIllegalDataValue)
	}

	rt, ok := r.match(unit, fc, addr, qty)
	if !ok {
		return exceptionPDU(fc, ExceptionIllegalDataAddress)
	}

	values := make([]uint16, qty)
	for i := uint16(0); i < qty; i++ {
		values[i] = binary.BigEndian.Uint16(pdu[6+i*2:])
	}
	rt.WriteWords(addr, values)

	resp := make([]byte, 5)
	resp[0] = byte(fc)
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], qty)
	return resp
}

func exceptionPDU(fc FunctionCode, ec ExceptionCode) []byte {
	return []byte{byte(fc) | 0x80, byte(ec)}
}

// IsExceptionPDU checks if the PDU is an exception response.
func IsExceptionPDU(pdu []byte) bool {
	return len(pdu) > 0 && (pdu[0]&0x80) != 0
}
