package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensafely-core/release-hatch/internal/schema"
	"github.com/opensafely-core/release-hatch/internal/token"
)

func newRequestCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <file>...",
		Short: "Request a release of the named workspace files",
		Long: "Fetches the workspace index, builds a release request from the named\n" +
			"files and their current hashes, and submits it.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			auth, err := s.mint(token.ScopeRelease)
			if err != nil {
				return err
			}
			list, err := s.fetchIndex(auth, "")
			if err != nil {
				return err
			}
			request, err := buildRequest(list, args)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(request)
			if err != nil {
				return err
			}

			resp, body, err := s.post(s.workspaceURL()+"/release", auth, payload)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Release-Id: %s\n", resp.Header.Get("Release-Id"))
			fmt.Fprintf(out, "Location: %s\n", resp.Header.Get("Location"))
			if len(body) > 0 {
				fmt.Fprintln(out, string(body))
			}
			return nil
		},
	}
	return cmd
}

// buildRequest 从索引中挑出指定文件，生成 FileList 形式的发布请求。
func buildRequest(list *schema.FileList, names []string) (*schema.FileList, error) {
	byName := make(map[string]schema.FileMetadata, len(list.Files))
	for _, f := range list.Files {
		byName[f.Name] = f
	}
	request := &schema.FileList{}
	for _, raw := range names {
		name := schema.NormalizeName(raw)
		f, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("file %s not found in workspace index", name)
		}
		request.Files = append(request.Files, f)
	}
	return request, nil
}
