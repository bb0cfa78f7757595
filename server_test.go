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
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

// startServer runs a server with the default binding on an ephemeral port
// and returns its address plus the store behind it.
func startServer(t *testing.T) (string, *Store, *Server) {
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

	server := NewServer(router)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })

	return listener.Addr().String(), store, server
}

func connectClient(t *testing.T, addr string, opts ...Option) *Client {
	t.Helper()

	client, err := NewClient(addr, opts...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestServerReadWriteRegisters(t *testing.T) {
	addr, _, _ := startServer(t)
	client := connectClient(t, addr)
	ctx := context.Background()

	if err := client.WriteMultipleRegisters(ctx, 10, []uint16{100, 200, 300}); err != nil {
		t.Fatalf("WriteMultipleRegisters failed: %v", err)
	}

	// Three single reads see exactly the written values, in order
	for i, want := range []uint16{100, 200, 300} {
		regs, err := client.ReadHoldingRegisters(ctx, uint16(10+i), 1)
		if err != nil {
			t.Fatalf("ReadHoldingRegisters failed: %v", err)
		}
		if regs[0] != want {
			t.Errorf("Register[%d]: expected %d, got %d", 10+i, want, regs[0])
		}
	}

	if err := client.WriteSingleRegister(ctx, 0, 4242); err != nil {
		t.Fatalf("WriteSingleRegister failed: %v", err)
	}
	regs, err := client.ReadHoldingRegisters(ctx, 0, 1)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	if regs[0] != 4242 {
		t.Errorf("Register[0]: expected 4242, got %d", regs[0])
	}
}

func TestServerCoilsAndDiscreteInputs(t *testing.T) {
	addr, store, _ := startServer(t)
	client := connectClient(t, addr)
	ctx := context.Background()

	if err := client.WriteSingleCoil(ctx, 5, true); err != nil {
		t.Fatalf("WriteSingleCoil failed: %v", err)
	}

	coils, err := client.ReadCoils(ctx, 5, 1)
	if err != nil {
		t.Fatalf("ReadCoils failed: %v", err)
	}
	if !coils[0] {
		t.Error("Coil[5] should be true")
	}

	// Same address in the discrete input bank is untouched
	inputs, err := client.ReadDiscreteInputs(ctx, 5, 1)
	if err != nil {
		t.Fatalf("ReadDiscreteInputs failed: %v", err)
	}
	if inputs[0] {
		t.Error("DiscreteInput[5] should be unaffected by the coil write")
	}

	// Discrete inputs are fed from the store side
	store.SetDiscreteInput(7, true)
	inputs, err = client.ReadDiscreteInputs(ctx, 7, 1)
	if err != nil {
		t.Fatalf("ReadDiscreteInputs failed: %v", err)
	}
	if !inputs[0] {
		t.Error("DiscreteInput[7] should be true")
	}
}

func TestServerFloatPairOverWire(t *testing.T) {
	addr, store, _ := startServer(t)
	client := connectClient(t, addr)
	ctx := context.Background()

	if err := client.WriteHoldingFloat32(ctx, 20, 21.5); err != nil {
		t.Fatalf("WriteHoldingFloat32 failed: %v", err)
	}

	// The pair lands big-endian, high word first
	regs, err := client.ReadHoldingRegisters(ctx, 20, 2)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	if regs[0] != 0x41AC || regs[1] != 0x0000 {
		t.Errorf("Float words: expected 41AC 0000, got %04X %04X", regs[0], regs[1])
	}

	got, err := client.ReadHoldingFloat32(ctx, 20)
	if err != nil {
		t.Fatalf("ReadHoldingFloat32 failed: %v", err)
	}
	if got != 21.5 {
		t.Errorf("ReadHoldingFloat32: expected 21.5, got %v", got)
	}

	// Input register floats are seeded store-side and read via FC04
	store.SetInputFloat32(30, -1.25)
	got, err = client.ReadInputFloat32(ctx, 30)
	if err != nil {
		t.Fatalf("ReadInputFloat32 failed: %v", err)
	}
	if got != -1.25 {
		t.Errorf("ReadInputFloat32: expected -1.25, got %v", got)
	}
}

func TestServerExceptions(t *testing.T) {
	addr, store, _ := startServer(t)
	client := connectClient(t, addr)
	ctx := context.Background()

	// Span running past the window end
	if _, err := client.ReadHoldingRegisters(ctx, 48, 5); !IsIllegalDataAddress(err) {
		t.Errorf("Expected illegal data address, got %v", err)
	}

	// Rejected writes leave the store untouched
	if err := client.WriteMultipleRegisters(ctx, 48, []uint16{1, 2, 3}); !IsIllegalDataAddress(err) {
		t.Errorf("Expected illegal data address, got %v", err)
	}
	if store.HoldingRegister(48) != 0 || store.HoldingRegister(49) != 0 {
		t.Error("Rejected write must not modify any register")
	}

	// Unknown unit id
	if _, err := client.ReadHoldingRegisters(context.Background(), 0, 1); err != nil {
		t.Fatalf("Sanity read failed: %v", err)
	}
	other := connectClient(t, addr, WithUnitID(9))
	if _, err := other.ReadHoldingRegisters(ctx, 0, 1); !IsException(err, ExceptionGatewayTargetFailed) {
		t.Errorf("Expected gateway target failed, got %v", err)
	}
}

func TestServerConcurrentClients(t *testing.T) {
	addr, _, _ := startServer(t)
	ctx := context.Background()

	// Two connections writing disjoint ranges concurrently; neither write
	// may corrupt the other.
	clientA := connectClient(t, addr)
	clientB := connectClient(t, addr)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			clientA.WriteMultipleRegisters(ctx, 0, []uint16{uint16(i), uint16(i), uint16(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			clientB.WriteMultipleRegisters(ctx, 10, []uint16{uint16(i + 100), uint16(i + 100)})
		}
	}()
	wg.Wait()

	regs, err := clientA.ReadHoldingRegisters(ctx, 0, 3)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	if regs[0] != 49 || regs[1] != 49 || regs[2] != 49 {
		t.Errorf("Range A: expected [49 49 49], got %v", regs)
	}

	regs, err = clientB.ReadHoldingRegisters(ctx, 10, 2)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	if regs[0] != 149 || regs[1] != 149 {
		t.Errorf("Range B: expected [149 149], got %v", regs)
	}
}

func TestServerMalformedFrameClosesOnlyThatConn(t *testing.T) {
	addr, _, server := startServer(t)

	healthy := connectClient(t, addr)
	ctx := context.Background()

	// Raw connection sending a frame with a bad protocol ID
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer raw.Close()

	bad := []byte{0x00, 0x01, 0xDE, 0xAD, 0x00, 0x02, 0x01, 0x03}
	if _, err := raw.Write(bad); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Server drops the offending connection
	raw.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	if n, err := raw.Read(buf); err == nil {
		t.Errorf("Expected closed connection, read %d bytes", n)
	}

	// The healthy connection keeps working
	if err := healthy.WriteSingleRegister(ctx, 1, 77); err != nil {
		t.Fatalf("WriteSingleRegister after malformed peer failed: %v", err)
	}
	regs, err := healthy.ReadHoldingRegisters(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters after malformed peer failed: %v", err)
	}
	if regs[0] != 77 {
		t.Errorf("Register[1]: expected 77, got %d", regs[0])
	}

	if server.Metrics().RequestsTotal.Value() == 0 {
		t.Error("Server metrics should have counted requests")
	}
}

func TestServerMetrics(t *testing.T) {
	addr, _, server := startServer(t)
	client := connectClient(t, addr)
	ctx := context.Background()

	if err := client.WriteSingleRegister(ctx, 0, 1); err != nil {
		t.Fatalf("WriteSingleRegister failed: %v", err)
	}
	if _, err := client.ReadHoldingRegisters(ctx, 50, 1); !IsIllegalDataAddress(err) {
		t.Fatalf("Expected illegal data address, got %v", err)
	}

	m := server.Metrics()
	if m.RequestsTotal.Value() != 2 {
		t.Errorf("RequestsTotal: expected 2, got %d", m.RequestsTotal.Value())
	}
	if m.RequestsSuccess.Value() != 1 {
		t.Errorf("RequestsSuccess: expected 1, got %d", m.RequestsSuccess.Value())
	}
	if m.Exceptions.Value() != 1 {
		t.Errorf("Exceptions: expected 1, got %d", m.Exceptions.Value())
	}
	if got := m.ForFunction(FuncWriteSingleRegister).Requests.Value(); got != 1 {
		t.Errorf("FC06 requests: expected 1, got %d", got)
	}
	if got := m.ForFunction(FuncReadHoldingRegisters).Exceptions.Value(); got != 1 {
		t.Errorf("FC03 exceptions: expected 1, got %d", got)
	}
}

func TestServerAddr(t *testing.T) {
	router := NewRouter()
	server := NewServer(router)

	if server.Addr() != nil {
		t.Error("Addr should be nil before listening")
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	expectedAddr := listener.Addr()

	go server.Serve(listener)
	defer server.Close()

	time.Sleep(10 * time.Millisecond)

	addr := server.Addr()
	if addr == nil {
		t.Error("Addr should not be nil after listening")
	} else if addr.String() != expectedAddr.String() {
		t.Errorf("Addr mismatch: expected %s, got %s", expectedAddr, addr)
	}
}
