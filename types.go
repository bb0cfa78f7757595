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

// Package regsim implements a Modbus TCP register-simulation server: four
// in-memory register banks served over the standard function codes, with an
// interactive operator shell that bypasses the wire protocol.
package regsim

import "time"

// UnitID represents the Modbus unit identifier (slave address).
type UnitID uint8

// FunctionCode represents a Modbus function code.
type FunctionCode uint8

// Function codes served by the simulator.
const (
	FuncReadCoils              FunctionCode = 0x01
	FuncReadDiscreteInputs     FunctionCode = 0x02
	FuncReadHoldingRegisters   FunctionCode = 0x03
	FuncReadInputRegisters     FunctionCode = 0x04
	FuncWriteSingleCoil        FunctionCode = 0x05
	FuncWriteSingleRegister    FunctionCode = 0x06
	FuncWriteMultipleCoils     FunctionCode = 0x0F
	FuncWriteMultipleRegisters FunctionCode = 0x10
)

// String returns a string representation of FunctionCode.
func (fc FunctionCode) String() string {
	switch fc {
	case FuncReadCoils:
		return "ReadCoils"
	case FuncReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	case FuncWriteSingleCoil:
		return "WriteSingleCoil"
	case FuncWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FuncWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	default:
		return "Unknown"
	}
}

// IsWrite reports whether the function code mutates the register store.
func (fc FunctionCode) IsWrite() bool {
	switch fc {
	case FuncWriteSingleCoil, FuncWriteSingleRegister,
		FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
		return true
	}
	return false
}

// Protocol constants.
const (
	// MaxQuantityCoils is the maximum number of coils that can be read/written.
	MaxQuantityCoils = 2000

	// MaxQuantityDiscreteInputs is the maximum number of discrete inputs that can be read.
	MaxQuantityDiscreteInputs = 2000

	// MaxQuantityRegisters is the maximum number of registers that can be read.
	MaxQuantityRegisters = 125

	// MaxQuantityWriteRegisters is the maximum number of registers that can be written.
	MaxQuantityWriteRegisters = 123

	// MBAPHeaderSize is the size of the MBAP header in bytes.
	MBAPHeaderSize = 7

	// ProtocolID is the Modbus protocol identifier (always 0 for Modbus TCP).
	ProtocolID = 0

	// DefaultTimeout is the default timeout for Modbus operations.
	DefaultTimeout = 5 * time.Second

	// DefaultPort is the standard Modbus TCP port. The simulator binary
	// defaults to the non-privileged 1502 instead.
	DefaultPort = 502
)

// Simulator defaults: a single unit serving one fixed address window.
const (
	// DefaultUnitID is the unit identifier routes are bound to unless
	// configured otherwise.
	DefaultUnitID UnitID = 1

	// DefaultWindowStart and DefaultWindowEnd bound the default register
	// window (inclusive).
	DefaultWindowStart uint16 = 0
	DefaultWindowEnd   uint16 = 49
)

// Coil values for write operations.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// ConnectionState represents the state of a client connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
