package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	// Global flags
	listenAddr  string
	unitID      uint8
	windowStart uint16
	windowEnd   uint16
	maxConns    int
	readTimeout time.Duration
	withShell   bool
	verbose     bool

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "regsim",
	Short: "A Modbus TCP register-simulation server",
	Long: `regsim simulates a field device's four register banks (coils, discrete
inputs, holding registers, input registers) behind a Modbus TCP server.

Any Modbus TCP client can read and write the banks through function codes
1, 2, 3, 4, 5, 6, 15 and 16 inside the registered address window. An
interactive shell on stdin reads and writes the banks directly, including
IEEE754 float values spread over register pairs.

Examples:
  # Serve the default window (unit 1, addresses 0-49) on :1502 with a shell
  regsim serve

  # Serve on the standard port without a shell
  regsim serve --addr :502 --shell=false

  # Pre-load register values from a config file
  regsim serve --config ./regsim.yaml`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.regsim.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	serveCmd.Flags().StringVarP(&listenAddr, "addr", "a", ":1502", "Listen address (standard Modbus port is 502)")
	serveCmd.Flags().Uint8VarP(&unitID, "unit", "u", 1, "Unit ID routes are bound to (1-247)")
	serveCmd.Flags().Uint16Var(&windowStart, "window-start", 0, "First served register address")
	serveCmd.Flags().Uint16Var(&windowEnd, "window-end", 49, "Last served register address (inclusive)")
	serveCmd.Flags().IntVar(&maxConns, "max-conns", 100, "Maximum concurrent client connections")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "Per-connection read timeout")
	serveCmd.Flags().BoolVar(&withShell, "shell", true, "Run the interactive shell on stdin")

	viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("unit", serveCmd.Flags().Lookup("unit"))
	viper.BindPFlag("window_start", serveCmd.Flags().Lookup("window-start"))
	viper.BindPFlag("window_end", serveCmd.Flags().Lookup("window-end"))
	viper.BindPFlag("max_conns", serveCmd.Flags().Lookup("max-conns"))
	viper.BindPFlag("read_timeout", serveCmd.Flags().Lookup("read-timeout"))
	viper.BindPFlag("shell", serveCmd.Flags().Lookup("shell"))

	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".regsim")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REGSIM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
