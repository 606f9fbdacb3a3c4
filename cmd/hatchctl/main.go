package main

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensafely-core/release-hatch/internal/config"
	"github.com/opensafely-core/release-hatch/internal/token"
	"github.com/opensafely-core/release-hatch/internal/version"
)

// globalOptions 是所有子命令共享的参数。
type globalOptions struct {
	configPath string
	workspace  string
	user       string
	duration   time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "hatchctl",
		Short:         "Mint tokens for and talk to a release-hatch server",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", defaultConfigPath(), "server config file (signing key, release host)")
	flags.StringVarP(&opts.workspace, "workspace", "w", "", "workspace name")
	flags.StringVarP(&opts.user, "user", "u", currentUser(), "user the token is issued to")
	flags.DurationVarP(&opts.duration, "duration", "d", time.Hour, "token lifetime")

	root.AddCommand(newTokenCmd(opts))
	root.AddCommand(newListCmd(opts))
	root.AddCommand(newFileCmd(opts))
	root.AddCommand(newRequestCmd(opts))
	return root
}

func defaultConfigPath() string {
	if path := os.Getenv("RELEASE_HATCH_CONFIG"); path != "" {
		return path
	}
	return "config.toml"
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

// session 持有已加载的配置与签名器。
type session struct {
	cfg   *config.Config
	codec *token.Codec
	opts  *globalOptions
}

func openSession(opts *globalOptions) (*session, error) {
	if opts.workspace == "" {
		return nil, fmt.Errorf("--workspace is required")
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	codec, err := token.NewCodec(token.Options{Key: cfg.Service.SigningKey, Context: cfg.Service.SigningContext})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, codec: codec, opts: opts}, nil
}

// mint 为 workspace 签发 token，URL 绑定到 <ReleaseHost>/workspace/<workspace>。
func (s *session) mint(scope token.Scope) (string, error) {
	tok, err := token.New(s.workspaceURL(), s.opts.user, time.Now().Add(s.opts.duration), scope)
	if err != nil {
		return "", err
	}
	return s.codec.Sign(tok)
}
