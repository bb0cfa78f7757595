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
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Server is the Modbus TCP connection listener. It accepts concurrent
// client connections, deframes MBAP messages and feeds the decoded
// requests to the Router. Each connection is served by its own goroutine;
// requests on one connection are processed strictly in order, while
// requests from different connections interleave only at the register
// store, under its atomicity guarantees.
type Server struct {
	router *Router
	opts   *serverOptions

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   int32
	wg       sync.WaitGroup
	metrics  *ServerMetrics
}

// NewServer creates a new Modbus TCP server dispatching into the given router.
func NewServer(router *Router, opts ...ServerOption) *Server {
	options := defaultServerOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Server{
		router:  router,
		opts:    options,
		conns:   make(map[net.Conn]struct{}),
		metrics: NewServerMetrics(),
	}
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *ServerMetrics {
	return s.metrics
}

// ListenAndServe starts the server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// ListenAndServeContext starts the server and shuts it down when the
// context is cancelled.
func (s *Server) ListenAndServeContext(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s.Serve(listener)
}

// Serve starts serving connections on the given listener.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.opts.logger.Info("server started", slog.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return nil
			}
			s.opts.logger.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		if len(s.conns) >= s.opts.maxConns {
			s.mu.Unlock()
			s.opts.logger.Warn("max connections reached, rejecting",
				slog.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.metrics.ActiveConns.Add(1)
		s.metrics.TotalConns.Add(1)
		s.mu.Unlock()

		// Configure TCP options
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(30 * time.Second)
			tcpConn.SetNoDelay(true)
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close shuts down the server gracefully.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.opts.logger.Info("server stopped")
	return err
}

// Addr returns the server's address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ActiveConnections returns the number of active connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		// Recover from panic to prevent server crash
		if r := recover(); r != nil {
			s.opts.logger.Error("panic in connection handler",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}

		s.wg.Done()
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.metrics.ActiveConns.Add(-1)
		s.mu.Unlock()
	}()

	s.opts.logger.Debug("connection accepted",
		slog.String("remote", conn.RemoteAddr().String()))

	for {
		if atomic.LoadInt32(&s.closed) == 1 {
			return
		}

		if s.opts.readTimeout > 0 {
			conn.SetReadDeadline(timeNow().Add(s.opts.readTimeout))
		}

		// A malformed frame terminates only this connection; other
		// connections and the server itself are unaffected.
		frame, err := ReadFrame(conn)
		if err != nil {
			if err != io.EOF && atomic.LoadInt32(&s.closed) == 0 {
				// Don't log timeout errors as they're expected for idle connections
				if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
					s.opts.logger.Debug("read error",
						slog.String("remote", conn.RemoteAddr().String()),
						slog.String("error", err.Error()))
				}
			}
			return
		}

		response := s.processRequest(frame)

		if s.opts.readTimeout > 0 {
			conn.SetWriteDeadline(timeNow().Add(s.opts.readTimeout))
		}

		if _, err := conn.Write(response.Encode()); err != nil {
			s.metrics.RequestsErrors.Add(1)
			s.opts.logger.Debug("write error",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.String("error", err.Error()))
			return
		}
	}
}

func (s *Server) processRequest(req *Frame) *Frame {
	resp := &Frame{
		Header: MBAPHeader{
			TransactionID: req.Header.TransactionID,
			ProtocolID:    ProtocolID,
			UnitID:        req.Header.UnitID,
		},
	}

	s.metrics.RequestsTotal.Add(1)

	if len(req.PDU) >= 1 {
		fc := FunctionCode(req.PDU[0])
		s.metrics.ForFunction(fc).Requests.Add(1)
		s.opts.logger.Debug("processing request",
			slog.Uint64("tx_id", uint64(req.Header.TransactionID)),
			slog.Uint64("unit_id", uint64(req.Header.UnitID)),
			slog.String("func", fc.String()))
	}

	start := timeNow()
	resp.PDU = s.router.Dispatch(req.Header.UnitID, req.PDU)
	s.metrics.Dispatch.Observe(time.Since(start))

	if IsExceptionPDU(resp.PDU) {
		s.metrics.Exceptions.Add(1)
		if len(req.PDU) >= 1 {
			s.metrics.ForFunction(FunctionCode(req.PDU[0])).Exceptions.Add(1)
		}
		s.opts.logger.Debug("exception response",
			slog.Uint64("tx_id", uint64(req.Header.TransactionID)),
			slog.String("exception", ExceptionCode(resp.PDU[1]).String()))
	} else {
		s.metrics.RequestsSuccess.Add(1)
	}

	return resp
}

// timeNow is a variable for testing
var timeNow = time.Now
