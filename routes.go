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

// BindStore registers routes for the eight supported function codes, all
// serving the given unit over the same address window, each backed by the
// bank that function code addresses. Write routes exist only for coils and
// holding registers; discrete inputs and input registers are read-only on
// the wire.
func BindStore(r *Router, store *Store, unit UnitID, window Window) error {
	routes := []Route{
		{Unit: unit, Func: FuncReadCoils, Window: window, ReadBits: store.Coils},
		{Unit: unit, Func: FuncReadDiscreteInputs, Window: window, ReadBits: store.DiscreteInputs},
		{Unit: unit, Func: FuncReadHoldingRegisters, Window: window, ReadWords: store.HoldingRegisters},
		{Unit: unit, Func: FuncReadInputRegisters, Window: window, ReadWords: store.InputRegisters},
		{Unit: unit, Func: FuncWriteSingleCoil, Window: window, WriteBits: store.SetCoils},
		{Unit: unit, Func: FuncWriteSingleRegister, Window: window, WriteWords: store.SetHoldingRegisters},
		{Unit: unit, Func: FuncWriteMultipleCoils, Window: window, WriteBits: store.SetCoils},
		{Unit: unit, Func: FuncWriteMultipleRegisters, Window: window, WriteWords: store.SetHoldingRegisters},
	}
	for _, rt := range routes {
		if err := r.Handle(rt); err != nil {
			return err
		}
	}
	return nil
}
