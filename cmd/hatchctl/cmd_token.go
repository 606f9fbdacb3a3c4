package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensafely-core/release-hatch/internal/token"
)

func newTokenCmd(opts *globalOptions) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed token for a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := token.ParseScope(scope)
			if err != nil {
				return err
			}
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			signed, err := s.mint(parsed)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", string(token.ScopeView), "token scope (view, upload, release)")
	return cmd
}
