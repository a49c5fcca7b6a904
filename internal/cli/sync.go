package cli

import (
	"fmt"
	"io"

	"github.com/cassiomorais/posqueue/internal/controller"
	"github.com/spf13/cobra"
)

// NewSyncCommand runs one drain and waits for it.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Submit every eligible transaction now",
		Long: `Submit pending and retryable failed transactions, oldest first, and wait
for the drain to finish. Exits 1 when any submission failed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			c, err := rootOpts.newClient(f)
			if err != nil {
				return err
			}
			res, err := c.Sync(cmd.Context())
			if err != nil {
				return f.Fail("sync", err)
			}
			if err := f.Success(res, func(w io.Writer) error {
				return renderSync(w, res)
			}); err != nil {
				return err
			}
			if res.Failed > 0 {
				return NewExitError(ExitFailure, res.Message)
			}
			return nil
		},
	}
}

// NewRetryFailedCommand requeues failed records that have retries left.
func NewRetryFailedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Return failed transactions with retries left to pending",
		Long: `Return failed transactions that have not reached sync.max_retries to
pending. Their retry count is kept; use "reset" to clear it for one
transaction.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			c, err := rootOpts.newClient(f)
			if err != nil {
				return err
			}
			n, err := c.RetryFailed(cmd.Context())
			if err != nil {
				return f.Fail("retry-failed", err)
			}
			return f.Success(controller.RetryFailedResponse{Requeued: n}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Requeued %d failed %s\n", n, noun(n))
				return err
			})
		},
	}
}

// NewResetCommand clears the retry count of one failed record.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "reset <local-id>",
		Short:         "Requeue one failed transaction with its retry count cleared",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			c, err := rootOpts.newClient(f)
			if err != nil {
				return err
			}
			if err := c.Reset(cmd.Context(), args[0]); err != nil {
				return f.Fail("reset", err)
			}
			return f.Success(map[string]string{"reset": args[0]}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Reset %s for retry\n", args[0])
				return err
			})
		},
	}
}

// NewStatusCommand prints the status snapshot.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show connectivity, queue depth and the last sync message",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			c, err := rootOpts.newClient(f)
			if err != nil {
				return err
			}
			snap, err := c.Status(cmd.Context())
			if err != nil {
				return f.Fail("status", err)
			}
			return f.Success(snap, func(w io.Writer) error {
				return renderStatus(w, snap)
			})
		},
	}
}

// NewConnectivityCommand pushes link state into a daemon running with
// connectivity.source manual, typically from a network dispatcher hook.
func NewConnectivityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connectivity",
		Short: "Report connectivity to a daemon using the manual source",
	}

	for _, state := range []struct {
		use    string
		online bool
	}{{"up", true}, {"down", false}} {
		state := state
		cmd.AddCommand(&cobra.Command{
			Use:           state.use,
			Short:         fmt.Sprintf("Report the network as %s", state.use),
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				f := rootOpts.formatter(cmd)
				c, err := rootOpts.newClient(f)
				if err != nil {
					return err
				}
				if err := c.SetConnectivity(cmd.Context(), state.online); err != nil {
					return f.Fail("connectivity", err)
				}
				return f.Success(controller.ConnectivityResponse{Online: state.online}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Connectivity reported %s\n", state.use)
					return err
				})
			},
		})
	}

	return cmd
}
