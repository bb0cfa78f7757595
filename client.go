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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edgeo-scada/regsim/internal/transport"
)

// Client is a Modbus TCP client covering the function codes the simulator
// serves, plus float convenience reads and writes over register pairs.
type Client struct {
	addr   string
	opts   *clientOptions
	logger *slog.Logger

	transport *transport.TCPTransport
	txIDGen   TransactionIDGenerator

	mu      sync.Mutex
	unitID  UnitID
	state   ConnectionState
	closed  bool
	metrics *Metrics
}

// NewClient creates a new Modbus TCP client.
func NewClient(addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("regsim: address cannot be empty")
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Client{
		addr:      addr,
		opts:      options,
		logger:    options.logger,
		transport: transport.NewTCPTransport(addr, options.timeout),
		unitID:    options.unitID,
		state:     StateDisconnected,
		metrics:   NewMetrics(),
	}, nil
}

// Connect establishes a connection to the Modbus server.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.logger.Debug("connecting", slog.String("addr", c.addr))

	if err := c.transport.Connect(ctx); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state = StateConnected
	c.metrics.ActiveConns.Add(1)
	c.mu.Unlock()

	c.logger.Info("connected", slog.String("addr", c.addr))
	return nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	if wasConnected {
		c.metrics.ActiveConns.Add(-1)
	}
	c.mu.Unlock()

	c.logger.Debug("closing connection", slog.String("addr", c.addr))
	return c.transport.Close()
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Metrics returns the client metrics.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// SetUnitID sets the default unit ID for subsequent requests.
func (c *Client) SetUnitID(id UnitID) {
	c.mu.Lock()
	c.unitID = id
	c.mu.Unlock()
}

// UnitID returns the current default unit ID.
func (c *Client) UnitID() UnitID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unitID
}

// Address returns the server address.
func (c *Client) Address() string {
	return c.addr
}

// send sends a PDU under the default unit ID and returns the response PDU.
func (c *Client) send(ctx context.Context, pdu []byte) ([]byte, error) {
	c.mu.Lock()
	unitID := c.unitID
	c.mu.Unlock()
	return c.sendWithUnit(ctx, unitID, pdu)
}

func (c *Client) sendWithUnit(ctx context.Context, unitID UnitID, pdu []byte) ([]byte, error) {
	if len(pdu) == 0 {
		return nil, errors.New("regsim: empty PDU")
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.mu.Unlock()

	start := time.Now()
	c.metrics.RequestsTotal.Add(1)

	txID := c.txIDGen.Next()
	frame := Frame{
		Header: MBAPHeader{
			TransactionID: txID,
			ProtocolID:    ProtocolID,
			UnitID:        unitID,
		},
		PDU: pdu,
	}

	expectedFC := FunctionCode(pdu[0])

	c.logger.Debug("sending request",
		slog.Uint64("tx_id", uint64(txID)),
		slog.Uint64("unit_id", uint64(unitID)),
		slog.String("func", expectedFC.String()))

	respData, err := c.transport.Send(ctx, frame.Encode())
	if err != nil {
		c.metrics.RequestsErrors.Add(1)
		return nil, err
	}

	var respFrame Frame
	if err := respFrame.Decode(respData); err != nil {
		c.metrics.RequestsErrors.Add(1)
		return nil, err
	}

	if respFrame.Header.TransactionID != txID {
		c.metrics.RequestsErrors.Add(1)
		return nil, fmt.Errorf("%w: transaction ID mismatch (expected %d, got %d)",
			ErrInvalidResponse, txID, respFrame.Header.TransactionID)
	}

	if respFrame.Header.UnitID != unitID {
		c.metrics.RequestsErrors.Add(1)
		return nil, fmt.Errorf("%w: unit ID mismatch (expected %d, got %d)",
			ErrInvalidResponse, unitID, respFrame.Header.UnitID)
	}

	if IsExceptionResponse(respFrame.PDU) {
		c.metrics.RequestsErrors.Add(1)
		return nil, ParseExceptionResponse(respFrame.PDU)
	}

	if len(respFrame.PDU) > 0 && FunctionCode(respFrame.PDU[0]) != expectedFC {
		c.metrics.RequestsErrors.Add(1)
		return nil, fmt.Errorf("%w: function code mismatch (expected %02X, got %02X)",
			ErrInvalidResponse, expectedFC, respFrame.PDU[0])
	}

	duration := time.Since(start)
	c.metrics.RequestsSuccess.Add(1)
	c.metrics.Latency.Observe(duration)

	c.logger.Debug("received response",
		slog.Uint64("tx_id", uint64(txID)),
		slog.Duration("duration", duration))

	return respFrame.PDU, nil
}

// ReadCoils reads coils from the server (FC01).
func (c *Client) ReadCoils(ctx context.Context, addr, qty uint16) ([]bool, error) {
	pdu, err := BuildReadCoilsPDU(addr, qty)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, pdu)
	if err != nil {
		return nil, err
	}
	return ParseCoilsResponse(resp, qty)
}

// ReadDiscreteInputs reads discrete inputs from the server (FC02).
func (c *Client) ReadDiscreteInputs(ctx context.Context, addr, qty uint16) ([]bool, error) {
	pdu, err := BuildReadDiscreteInputsPDU(addr, qty)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, pdu)
	if err != nil {
		return nil, err
	}
	return ParseCoilsResponse(resp, qty)
}

// ReadHoldingRegisters reads holding registers from the server (FC03).
func (c *Client) ReadHoldingRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) {
	pdu, err := BuildReadHoldingRegistersPDU(addr, qty)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, pdu)
	if err != nil {
		return nil, err
	}
	return ParseRegistersResponse(resp, qty)
}

// ReadInputRegisters reads input registers from the server (FC04).
func (c *Client) ReadInputRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) {
	pdu, err := BuildReadInputRegistersPDU(addr, qty)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, pdu)
	if err != nil {
		return nil, err
	}
	return ParseRegistersResponse(resp, qty)
}

// WriteSingleCoil writes a single coil (FC05).
func (c *Client) WriteSingleCoil(ctx context.Context, addr uint16, value bool) error {
	pdu := BuildWriteSingleCoilPDU(addr, value)
	resp, err := c.send(ctx, pdu)
	if err != nil {
		return err
	}
	expectedValue := CoilOff
	if value {
		expectedValue = CoilOn
	}
	return ParseWriteResponse(resp, addr, expectedValue)
}

// WriteSingleRegister writes a single register (FC06).
func (c *Client) WriteSingleRegister(ctx context.Context, addr, value uint16) error {
	pdu := BuildWriteSingleRegisterPDU(addr, value)
	resp, err := c.send(ctx, pdu)
	if err != nil {
		return err
	}
	return ParseWriteResponse(resp, addr, value)
}

// WriteMultipleCoils writes multiple coils (FC15).
func (c *Client) WriteMultipleCoils(ctx context.Context, addr uint16, values []bool) error {
	if len(values) == 0 {
		return ErrInvalidQuantity
	}
	pdu, err := BuildWriteMultipleCoilsPDU(addr, values)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, pdu)
	if err != nil {
		return err
	}
	return ParseWriteMultipleResponse(resp, addr, uint16(len(values)))
}

// WriteMultipleRegisters writes multiple registers (FC16).
func (c *Client) WriteMultipleRegisters(ctx context.Context, addr uint16, values []uint16) error {
	if len(values) == 0 {
		return ErrInvalidQuantity
	}
	pdu, err := BuildWriteMultipleRegistersPDU(addr, values)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, pdu)
	if err != nil {
		return err
	}
	return ParseWriteMultipleResponse(resp, addr, uint16(len(values)))
}

// ReadHoldingFloat32 reads the register pair at addr and addr+1 as one
// IEEE-754 binary32 value (FC03 + float codec).
func (c *Client) ReadHoldingFloat32(ctx context.Context, addr uint16) (float32, error) {
	words, err := c.ReadHoldingRegisters(ctx, addr, 2)
	if err != nil {
		return 0, err
	}
	return WordsToFloat32(words[0], words[1]), nil
}

// ReadInputFloat32 reads the input register pair at addr and addr+1 as one
// IEEE-754 binary32 value (FC04 + float codec).
func (c *Client) ReadInputFloat32(ctx context.Context, addr uint16) (float32, error) {
	words, err := c.ReadInputRegisters(ctx, addr, 2)
	if err != nil {
		return 0, err
	}
	return WordsToFloat32(words[0], words[1]), nil
}

// WriteHoldingFloat32 writes value into the register pair at addr and
// addr+1 as one atomic FC16 request.
func (c *Client) WriteHoldingFloat32(ctx context.Context, addr uint16, value float32) error {
	hi, lo := Float32ToWords(value)
	return c.WriteMultipleRegisters(ctx, addr, []uint16{hi, lo})
}
