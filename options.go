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
	"io"
	"log/slog"
	"os"
	"time"
)

// Option is a functional option for configuring the client.
type Option func(*clientOptions)

type clientOptions struct {
	unitID  UnitID
	timeout time.Duration
	logger  *slog.Logger
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		unitID:  DefaultUnitID,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
}

// WithUnitID sets the default unit ID for requests.
func WithUnitID(id UnitID) Option {
	return func(o *clientOptions) {
		o.unitID = id
	}
}

// WithTimeout sets the timeout for operations.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// ServerOption is a functional option for configuring the server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger      *slog.Logger
	maxConns    int
	readTimeout time.Duration
}

func defaultServerOptions() *serverOptions {
	return &serverOptions{
		logger:      slog.Default(),
		maxConns:    100,
		readTimeout: 30 * time.Second,
	}
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// WithMaxConnections sets the maximum number of concurrent connections.
func WithMaxConnections(n int) ServerOption {
	return func(o *serverOptions) {
		o.maxConns = n
	}
}

// WithReadTimeout sets the read timeout for client connections.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.readTimeout = d
	}
}

// ShellOption is a functional option for configuring the interactive shell.
type ShellOption func(*shellOptions)

type shellOptions struct {
	in            io.Reader
	out           io.Writer
	prompt        string
	pulseDuration time.Duration
}

func defaultShellOptions() *shellOptions {
	return &shellOptions{
		in:            os.Stdin,
		out:           os.Stdout,
		prompt:        ">> ",
		pulseDuration: 500 * time.Millisecond,
	}
}

// WithShellInput sets the reader the shell consumes commands from.
func WithShellInput(r io.Reader) ShellOption {
	return func(o *shellOptions) {
		o.in = r
	}
}

// WithShellOutput sets the writer the shell prints to.
func WithShellOutput(w io.Writer) ShellOption {
	return func(o *shellOptions) {
		o.out = w
	}
}

// WithShellPrompt sets the prompt string.
func WithShellPrompt(p string) ShellOption {
	return func(o *shellOptions) {
		o.prompt = p
	}
}

// WithPulseDuration sets the default hold time of the pulse command.
func WithPulseDuration(d time.Duration) ShellOption {
	return func(o *shellOptions) {
		o.pulseDuration = d
	}
}
