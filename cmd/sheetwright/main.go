package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	logFormat  string

	cfg *config.Config
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = ""

var rootCmd = &cobra.Command{
	Use:   "sheetwright",
	Short: "Edit spreadsheets by writing what you want in cell A1",
	Long: `sheetwright reads the instruction in cell A1 of a spreadsheet, asks a
language model for a Python script that carries it out, runs the script in
an isolated interpreter and hands back the edited workbook.

Generations are capped per day; see "sheetwright quota".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if logFormat != "" {
			loaded.Logging.Format = logFormat
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if _, err := logging.Initialize(loaded.Logging); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sheetwright.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
