package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Rorqualx/darkpattern-remover/internal/exclusion"
	"github.com/Rorqualx/darkpattern-remover/internal/settings"
	"github.com/Rorqualx/darkpattern-remover/internal/store"
)

// NewExclusionsCmd creates the exclusions command group.
func NewExclusionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "exclusions",
		Aliases: []string{"exclude"},
		Short:   "Manage hosts on which the engine stays disabled",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the excluded host patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(s store.Store) error {
				for _, p := range store.ReadExcludedHosts(cmd.Context(), s) {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <pattern>...",
		Short: "Add host patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(s store.Store) error {
				current := store.ReadExcludedHosts(cmd.Context(), s)
				for _, p := range exclusion.ParseLines(exclusion.FormatLines(args)) {
					if !slices.Contains(current, p) {
						current = append(current, p)
					}
				}
				return s.Set(cmd.Context(), store.KeyExcludedHosts, current)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <pattern>...",
		Short: "Remove host patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(s store.Store) error {
				current := store.ReadExcludedHosts(cmd.Context(), s)
				kept := current[:0:0]
				for _, p := range current {
					if !slices.Contains(args, p) {
						kept = append(kept, p)
					}
				}
				return s.Set(cmd.Context(), store.KeyExcludedHosts, kept)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Edit the excluded hosts in a terminal editor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(s store.Store) error {
				return settings.Run(cmd.Context(), s)
			})
		},
	})

	return cmd
}

func withStore(cmd *cobra.Command, fn func(store.Store) error) error {
	s, err := openStore(loadConfig(cmd))
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
