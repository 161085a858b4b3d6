package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rorqualx/darkpattern-remover/internal/exclusion"
	"github.com/Rorqualx/darkpattern-remover/internal/store"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <host>",
		Short: "Report whether the engine is disabled on a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			host := args[0]
			patterns := store.ReadExcludedHosts(cmd.Context(), s)
			if raw, ok := exclusion.MatchingPattern(host, patterns); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: excluded by %q\n", host, raw)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: not excluded\n", host)
			return nil
		},
	}
}
