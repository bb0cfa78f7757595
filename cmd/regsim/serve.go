package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo-scada/regsim"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the register-simulation server",
	Long: `Start the Modbus TCP server with a single unit serving all eight
function codes over one address window, backed by a shared register store.

Register values can be pre-loaded from the config file:

  seed:
    coils:
      "3": 1
    holding_registers:
      "10": 1234
    holding_floats:
      "20": 21.5
    input_registers:
      "5": 42
    discrete_inputs:
      "0": 1`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := viper.GetString("addr")
	unit := regsim.UnitID(viper.GetUint("unit"))
	start := uint16(viper.GetUint("window_start"))
	end := uint16(viper.GetUint("window_end"))

	store := regsim.NewStore()
	if err := seedStore(store); err != nil {
		return fmt.Errorf("seed store: %w", err)
	}

	window, err := regsim.NewWindow(start, end)
	if err != nil {
		return err
	}

	router := regsim.NewRouter()
	if err := regsim.BindStore(router, store, unit, window); err != nil {
		return fmt.Errorf("bind store: %w", err)
	}

	server := regsim.NewServer(router,
		regsim.WithServerLogger(logger),
		regsim.WithMaxConnections(viper.GetInt("max_conns")),
		regsim.WithReadTimeout(viper.GetDuration("read_timeout")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting register simulator",
		slog.String("addr", addr),
		slog.Uint64("unit", uint64(unit)),
		slog.Uint64("window_start", uint64(window.Start)),
		slog.Uint64("window_end", uint64(window.End)))

	if viper.GetBool("shell") {
		// The shell shares only the store with the server. Exiting the
		// shell does not stop the server; a signal stops both.
		go func() {
			shell := regsim.NewShell(store)
			if err := shell.Run(); err != nil {
				logger.Error("shell error", slog.String("error", err.Error()))
			}
		}()
	}

	return server.ListenAndServeContext(ctx, addr)
}

// seedStore pre-loads register values from the "seed" config section.
// Keys are decimal or hex addresses, values are bank-appropriate numbers.
func seedStore(store *regsim.Store) error {
	for key, raw := range viper.GetStringMapString("seed.coils") {
		addr, value, err := parseSeedBit(key, raw)
		if err != nil {
			return fmt.Errorf("seed.coils[%s]: %w", key, err)
		}
		store.SetCoil(addr, value)
	}

	for key, raw := range viper.GetStringMapString("seed.discrete_inputs") {
		addr, value, err := parseSeedBit(key, raw)
		if err != nil {
			return fmt.Errorf("seed.discrete_inputs[%s]: %w", key, err)
		}
		store.SetDiscreteInput(addr, value)
	}

	for key, raw := range viper.GetStringMapString("seed.holding_registers") {
		addr, value, err := parseSeedWord(key, raw)
		if err != nil {
			return fmt.Errorf("seed.holding_registers[%s]: %w", key, err)
		}
		store.SetHoldingRegister(addr, value)
	}

	for key, raw := range viper.GetStringMapString("seed.input_registers") {
		addr, value, err := parseSeedWord(key, raw)
		if err != nil {
			return fmt.Errorf("seed.input_registers[%s]: %w", key, err)
		}
		store.SetInputRegister(addr, value)
	}

	for key, raw := range viper.GetStringMapString("seed.holding_floats") {
		addr, value, err := parseSeedFloat(key, raw)
		if err != nil {
			return fmt.Errorf("seed.holding_floats[%s]: %w", key, err)
		}
		store.SetHoldingFloat32(addr, value)
	}

	for key, raw := range viper.GetStringMapString("seed.input_floats") {
		addr, value, err := parseSeedFloat(key, raw)
		if err != nil {
			return fmt.Errorf("seed.input_floats[%s]: %w", key, err)
		}
		store.SetInputFloat32(addr, value)
	}

	return nil
}

func parseSeedAddr(key string) (uint16, error) {
	addr, err := strconv.ParseUint(key, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", key)
	}
	return uint16(addr), nil
}

func parseSeedBit(key, raw string) (uint16, bool, error) {
	addr, err := parseSeedAddr(key)
	if err != nil {
		return 0, false, err
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid bit value %q", raw)
	}
	return addr, value, nil
}

func parseSeedWord(key, raw string) (uint16, uint16, error) {
	addr, err := parseSeedAddr(key)
	if err != nil {
		return 0, 0, err
	}
	value, err := strconv.ParseUint(raw, 0, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid register value %q", raw)
	}
	return addr, uint16(value), nil
}

func parseSeedFloat(key, raw string) (uint16, float32, error) {
	addr, err := parseSeedAddr(key)
	if err != nil {
		return 0, 0, err
	}
	value, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid float value %q", raw)
	}
	return addr, float32(value), nil
}
