package main

import (
	"github.com/spf13/cobra"

	"github.com/opensafely-core/release-hatch/internal/token"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var releaseID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the file index of a workspace or release",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			auth, err := s.mint(token.ScopeView)
			if err != nil {
				return err
			}
			list, err := s.fetchIndex(auth, releaseID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVarP(&releaseID, "release", "r", "", "list a release instead of the current workspace")
	return cmd
}
