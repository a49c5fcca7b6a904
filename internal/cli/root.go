package cli

import (
	"fmt"
	"slices"

	"github.com/cassiomorais/posqueue/internal/client"
	"github.com/cassiomorais/posqueue/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Addr       string // control API base URL; from config when empty
	Token      string
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the posqueue command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "posqueue",
		Short: "Offline transaction queue for point-of-sale terminals",
		Long: `posqueue keeps sales recorded at the terminal in a durable local queue and
submits them to the remote ledger whenever the network is available.

Run "posqueue serve" on the terminal; the other commands talk to its control API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default: search ./config.yaml, ./config, /etc/posqueue)")
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "", "control API URL (default: from server.host and server.port)")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "control API token (default: server.api_token)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewRetryFailedCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewConnectivityCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// newClient builds a control API client. The config file is only read when
// --addr is not given.
func (o *RootOptions) newClient(f *OutputFormatter) (*client.Client, error) {
	addr, token := o.Addr, o.Token
	if addr == "" {
		cfg, err := config.LoadFile(o.ConfigPath)
		if err != nil {
			f.Error(ErrCodeConfig, err.Error(), nil)
			return nil, WrapExitError(ExitCommandError, "load config", err)
		}
		addr = "http://" + cfg.Server.Addr()
		if token == "" {
			token = cfg.Server.APIToken
		}
	}
	f.VerboseLog("control API: %s", addr)
	return client.New(addr, client.WithToken(token)), nil
}
