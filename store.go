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
	"fmt"
	"strings"
	"sync"
)

// Bank identifies one of the four register banks.
type Bank int

const (
	BankCoils Bank = iota
	BankDiscreteInputs
	BankHoldingRegisters
	BankInputRegisters
)

// String returns the bank's canonical name as used by the shell.
func (b Bank) String() string {
	switch b {
	case BankCoils:
		return "coil"
	case BankDiscreteInputs:
		return "discrete"
	case BankHoldingRegisters:
		return "holding"
	case BankInputRegisters:
		return "input"
	default:
		return "unknown"
	}
}

// IsBitBank reports whether the bank holds single-bit values.
func (b Bank) IsBitBank() bool {
	return b == BankCoils || b == BankDiscreteInputs
}

// ParseBank resolves a bank name as accepted by the shell.
func ParseBank(name string) (Bank, error) {
	switch strings.ToLower(name) {
	case "coil", "coils":
		return BankCoils, nil
	case "discrete", "discrete-input", "discrete-inputs":
		return BankDiscreteInputs, nil
	case "holding", "holding-register", "holding-registers":
		return BankHoldingRegisters, nil
	case "input", "input-register", "input-registers":
		return BankInputRegisters, nil
	default:
		return 0, fmt.Errorf("%w: %q (use: coil, discrete, holding, input)", ErrUnknownBank, name)
	}
}

// Store holds the four register banks shared by all connections and the
// interactive shell. Addresses are materialized lazily: reading an address
// that was never written returns the bank's default (false / 0).
//
// Every exported method takes and releases the lock exactly once, so each
// call (including the multi-value and float-pair variants) is atomic with
// respect to any other call. No operation fails; range checks are the
// router's concern.
type Store struct {
	mu             sync.RWMutex
	coils          map[uint16]bool
	discreteInputs map[uint16]bool
	holdingRegs    map[uint16]uint16
	inputRegs      map[uint16]uint16
}

// NewStore creates an empty register store.
func NewStore() *Store {
	return &Store{
		coils:          make(map[uint16]bool),
		discreteInputs: make(map[uint16]bool),
		holdingRegs:    make(map[uint16]uint16),
		inputRegs:      make(map[uint16]uint16),
	}
}

// Coil returns the coil at addr.
func (s *Store) Coil(addr uint16) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coils[addr]
}

// SetCoil sets the coil at addr.
func (s *Store) SetCoil(addr uint16, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coils[addr] = value
}

// Coils returns qty coil values starting at addr.
func (s *Store) Coils(addr, qty uint16) []bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readBits(s.coils, addr, qty)
}

// SetCoils writes len(values) coils starting at addr in one atomic call.
func (s *Store) SetCoils(addr uint16, values []bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeBits(s.coils, addr, values)
}

// DiscreteInput returns the discrete input at addr.
func (s *Store) DiscreteInput(addr uint16) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.discreteInputs[addr]
}

// SetDiscreteInput sets the discrete input at addr. Discrete inputs are
// read-only on the wire; this is for the shell and for seeding.
func (s *Store) SetDiscreteInput(addr uint16, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discreteInputs[addr] = value
}

// DiscreteInputs returns qty discrete input values starting at addr.
func (s *Store) DiscreteInputs(addr, qty uint16) []bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readBits(s.discreteInputs, addr, qty)
}

// SetDiscreteInputs writes len(values) discrete inputs starting at addr.
func (s *Store) SetDiscreteInputs(addr uint16, values []bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeBits(s.discreteInputs, addr, values)
}

// HoldingRegister returns the holding register at addr.
func (s *Store) HoldingRegister(addr uint16) uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holdingRegs[addr]
}

// SetHoldingRegister sets the holding register at addr.
func (s *Store) SetHoldingRegister(addr, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdingRegs[addr] = value
}

// HoldingRegisters returns qty holding register values starting at addr.
func (s *Store) HoldingRegisters(addr, qty uint16) []uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readWords(s.holdingRegs, addr, qty)
}

// SetHoldingRegisters writes len(values) holding registers starting at addr
// in one atomic call.
func (s *Store) SetHoldingRegisters(addr uint16, values []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeWords(s.holdingRegs, addr, values)
}

// InputRegister returns the input register at addr.
func (s *Store) InputRegister(addr uint16) uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputRegs[addr]
}

// SetInputRegister sets the input register at addr. Input registers are
// read-only on the wire; this is for the shell and for seeding.
func (s *Store) SetInputRegister(addr, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputRegs[addr] = value
}

// InputRegisters returns qty input register values starting at addr.
func (s *Store) InputRegisters(addr, qty uint16) []uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readWords(s.inputRegs, addr, qty)
}

// SetInputRegisters writes len(values) input registers starting at addr.
func (s *Store) SetInputRegisters(addr uint16, values []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeWords(s.inputRegs, addr, values)
}

// HoldingFloat32 decodes the holding registers at addr and addr+1 as one
// IEEE-754 binary32 value. Both words are read under a single lock.
func (s *Store) HoldingFloat32(addr uint16) float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return WordsToFloat32(s.holdingRegs[addr], s.holdingRegs[addr+1])
}

// SetHoldingFloat32 encodes value into the holding registers at addr and
// addr+1. Both words are written under a single lock, so no reader observes
// a half-written pair.
func (s *Store) SetHoldingFloat32(addr uint16, value float32) {
	hi, lo := Float32ToWords(value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdingRegs[addr] = hi
	s.holdingRegs[addr+1] = lo
}

// InputFloat32 decodes the input registers at addr and addr+1 as one
// IEEE-754 binary32 value.
func (s *Store) InputFloat32(addr uint16) float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return WordsToFloat32(s.inputRegs[addr], s.inputRegs[addr+1])
}

// SetInputFloat32 encodes value into the input registers at addr and addr+1.
func (s *Store) SetInputFloat32(addr uint16, value float32) {
	hi, lo := Float32ToWords(value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputRegs[addr] = hi
	s.inputRegs[addr+1] = lo
}

func readBits(bank map[uint16]bool, addr, qty uint16) []bool {
	values := make([]bool, qty)
	for i := uint16(0); i < qty; i++ {
		values[i] = bank[addr+i]
	}
	return values
}

func writeBits(bank map[uint16]bool, addr uint16, values []bool) {
	for i, v := range values {
		bank[addr+uint16(i)] = v
	}
}

func readWords(bank map[uint16]uint16, addr, qty uint16) []uint16 {
	values := make([]uint16, qty)
	for i := uint16(0); i < qty; i++ {
		values[i] = bank[addr+i]
	}
	return values
}

func writeWords(bank map[uint16]uint16, addr uint16, values []uint16) {
	for i, v := range values {
		bank[addr+uint16(i)] = v
	}
}
