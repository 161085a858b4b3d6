package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Rorqualx/darkpattern-remover/internal/config"
	"github.com/Rorqualx/darkpattern-remover/internal/store"
	"github.com/Rorqualx/darkpattern-remover/pkg/version"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adrctl",
		Short: "Remove cookie walls, consent banners and other dark patterns",
		Long: `adrctl runs the dark pattern removal engine from the command line.

It cleans saved HTML documents or live pages, and manages the list of
hosts on which the engine stays disabled.

Examples:
  # Clean a saved page and write the result
  adrctl clean page.html --host news.example.com -o clean.html

  # Load a live page in headless Chrome and clean it
  adrctl clean --url https://news.example.com/article

  # Check whether a host is excluded
  adrctl check shop.example.com

  # Edit the excluded hosts in the terminal
  adrctl exclusions edit`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level, _ := cmd.Flags().GetString("log-level")
			setupLogging(level)
		},
	}

	cmd.PersistentFlags().String("store-backend", "", "settings store: memory, file or sqlite (default $STORE_BACKEND)")
	cmd.PersistentFlags().String("store-path", "", "settings store path (default $STORE_PATH)")
	cmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewCleanCmd())
	cmd.AddCommand(NewExclusionsCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// loadConfig reads the environment and applies the persistent flags.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	if v, _ := cmd.Flags().GetString("store-backend"); v != "" {
		cfg.StoreBackend = strings.ToLower(v)
	}
	if v, _ := cmd.Flags().GetString("store-path"); v != "" {
		cfg.StorePath = v
	}
	cfg.Validate()
	return cfg
}

func openStore(cfg *config.Config) (store.ClosableStore, error) {
	s, err := store.Open(cfg.StoreBackend, cfg.StorePath, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}
	return s, nil
}
