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
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Shell is the interactive operator console. It reads and writes the
// register store directly, bypassing the wire protocol, and runs alongside
// the server sharing nothing with it but the store. Command errors are
// printed and the loop continues; only exit, quit or EOF end it, and none
// of them stop the server.
type Shell struct {
	store *Store
	opts  *shellOptions
}

// NewShell creates a shell operating on the given store.
func NewShell(store *Store, opts ...ShellOption) *Shell {
	options := defaultShellOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Shell{store: store, opts: options}
}

// Run consumes commands until exit/quit or EOF.
func (sh *Shell) Run() error {
	sh.printf("Shell started. Type 'help' for commands, 'exit' or 'quit' to stop the shell.\n")

	scanner := bufio.NewScanner(sh.opts.in)
	for {
		sh.printf("%s", sh.opts.prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if sh.execute(line) {
			sh.printf("Exiting shell...\n")
			break
		}
	}
	return scanner.Err()
}

func (sh *Shell) printf(format string, args ...interface{}) {
	fmt.Fprintf(sh.opts.out, format, args...)
}

// execute runs one command line and reports whether the loop should end.
func (sh *Shell) execute(line string) (done bool) {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "exit", "quit":
		return true
	case "help", "h", "?":
		sh.showHelp()
	case "read":
		sh.read(args)
	case "readf":
		sh.readFloat(args)
	case "write":
		sh.write(args)
	case "pulse":
		sh.pulse(args)
	default:
		sh.printf("Unknown command. Type 'help' for available commands.\n")
	}
	return false
}

func (sh *Shell) showHelp() {
	sh.printf(`Available commands:
  read <bank> <address>
    - Read a single value (bank: coil, discrete, holding, input)
  write <bank> <address> <value>
    - Write a value. For 'holding' and 'input' banks a float value is
      encoded into two registers (addr and addr+1, IEEE754 binary32).
  readf <holding|input> <address>
    - Decode two consecutive registers as a float.
  pulse <address> [duration]
    - Set a coil, hold it for the duration, then clear it.
  exit or quit
    - Exit the shell (server keeps running)
`)
}

func (sh *Shell) parseAddr(s string) (uint16, bool) {
	addr, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		sh.printf("Error: address must be an integer 0-65535.\n")
		return 0, false
	}
	return uint16(addr), true
}

func (sh *Shell) read(args []string) {
	if len(args) != 2 {
		sh.printf("Usage: read <bank> <address>\n")
		return
	}
	bank, err := ParseBank(args[0])
	if err != nil {
		sh.printf("Error: %v\n", err)
		return
	}
	addr, ok := sh.parseAddr(args[1])
	if !ok {
		return
	}

	switch bank {
	case BankCoils:
		sh.printf("Coil[%d] = %v\n", addr, sh.store.Coil(addr))
	case BankDiscreteInputs:
		sh.printf("Discrete Input[%d] = %v\n", addr, sh.store.DiscreteInput(addr))
	case BankHoldingRegisters:
		sh.printf("Holding Register[%d] = %d\n", addr, sh.store.HoldingRegister(addr))
	case BankInputRegisters:
		sh.printf("Input Register[%d] = %d\n", addr, sh.store.InputRegister(addr))
	}
}

func (sh *Shell) readFloat(args []string) {
	if len(args) != 2 {
		sh.printf("Usage: readf <holding|input> <address>\n")
		return
	}
	bank, err := ParseBank(args[0])
	if err != nil {
		sh.printf("Error: %v\n", err)
		return
	}
	addr, ok := sh.parseAddr(args[1])
	if !ok {
		return
	}

	switch bank {
	case BankHoldingRegisters:
		sh.printf("Holding Registers[%d] and [%d] as float = %v\n",
			addr, addr+1, sh.store.HoldingFloat32(addr))
	case BankInputRegisters:
		sh.printf("Input Registers[%d] and [%d] as float = %v\n",
			addr, addr+1, sh.store.InputFloat32(addr))
	default:
		sh.printf("Error: readf supported only for 'holding' or 'input' banks.\n")
	}
}

func (sh *Shell) write(args []string) {
	if len(args) != 3 {
		sh.printf("Usage: write <bank> <address> <value>\n")
		return
	}
	bank, err := ParseBank(args[0])
	if err != nil {
		sh.printf("Error: %v\n", err)
		return
	}
	addr, ok := sh.parseAddr(args[1])
	if !ok {
		return
	}
	raw := args[2]

	if bank.IsBitBank() {
		value, err := parseBit(raw)
		if err != nil {
			sh.printf("Error: %v\n", err)
			return
		}
		if bank == BankCoils {
			sh.store.SetCoil(addr, value)
			sh.printf("Set coil[%d] = %v\n", addr, value)
		} else {
			sh.store.SetDiscreteInput(addr, value)
			sh.printf("Set discrete input[%d] = %v\n", addr, value)
		}
		return
	}

	// A value written with a decimal point goes through the float codec
	// into the register pair addr, addr+1; an integer writes one word.
	if word, err := strconv.ParseUint(raw, 0, 16); err == nil && !strings.Contains(raw, ".") {
		if bank == BankHoldingRegisters {
			sh.store.SetHoldingRegister(addr, uint16(word))
			sh.printf("Set holding register[%d] = %d\n", addr, word)
		} else {
			sh.store.SetInputRegister(addr, uint16(word))
			sh.printf("Set input register[%d] = %d\n", addr, word)
		}
		return
	}

	value, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		sh.printf("Error: value must be a float or integer.\n")
		return
	}
	hi, lo := Float32ToWords(float32(value))
	if bank == BankHoldingRegisters {
		sh.store.SetHoldingFloat32(addr, float32(value))
		sh.printf("Set holding registers[%d] and [%d] from float %v (hex: %04X, %04X)\n",
			addr, addr+1, value, hi, lo)
	} else {
		sh.store.SetInputFloat32(addr, float32(value))
		sh.printf("Set input registers[%d] and [%d] from float %v (hex: %04X, %04X)\n",
			addr, addr+1, value, hi, lo)
	}
}

func (sh *Shell) pulse(args []string) {
	if len(args) < 1 || len(args) > 2 {
		sh.printf("Usage: pulse <address> [duration]\n")
		return
	}
	addr, ok := sh.parseAddr(args[0])
	if !ok {
		return
	}
	hold := sh.opts.pulseDuration
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil || d < 0 {
			sh.printf("Error: duration must be a positive Go duration (e.g. 500ms).\n")
			return
		}
		hold = d
	}

	sh.store.SetCoil(addr, true)
	sh.printf("Coil[%d] set, holding for %v...\n", addr, hold)
	time.Sleep(hold)
	sh.store.SetCoil(addr, false)
	sh.printf("Coil[%d] cleared.\n", addr)
}

func parseBit(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "on":
		return true, nil
	case "0", "false", "off":
		return false, nil
	default:
		return false, fmt.Errorf("value must be 0/1, true/false or on/off")
	}
}
