package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensafely-core/release-hatch/internal/schema"
	"github.com/opensafely-core/release-hatch/internal/token"
)

func newFileCmd(opts *globalOptions) *cobra.Command {
	var releaseID string
	var metadataOnly bool

	cmd := &cobra.Command{
		Use:   "file <name>",
		Short: "Download one file listed in the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := schema.NormalizeName(args[0])
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

			var entry *schema.FileMetadata
			for i := range list.Files {
				if list.Files[i].Name == name {
					entry = &list.Files[i]
					break
				}
			}
			if entry == nil {
				return fmt.Errorf("file %s not found in index", name)
			}
			if metadataOnly {
				return writeJSON(cmd.OutOrStdout(), entry)
			}
			if entry.URL == "" {
				return fmt.Errorf("index entry for %s has no url", name)
			}
			content, err := s.fetch(entry.URL, auth)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}
	cmd.Flags().StringVarP(&releaseID, "release", "r", "", "read from a release instead of the current workspace")
	cmd.Flags().BoolVar(&metadataOnly, "metadata", false, "print the index entry instead of the content")
	return cmd
}
