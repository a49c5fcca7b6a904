package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cassiomorais/posqueue/internal/controller"
	"github.com/spf13/cobra"
)

// NewEnqueueCommand records a transaction payload.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	var file, key string

	cmd := &cobra.Command{
		Use:   "enqueue [payload]",
		Short: "Queue a transaction payload",
		Long: `Queue a JSON transaction payload for submission.

The payload is taken from the argument, from --file, or from stdin when
neither is given. It is stored byte for byte and submitted as is.
Repeating --idempotency-key returns the first local id instead of queuing
the payload again.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(cmd, rootOpts, args, file, key)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `read the payload from a file ("-" for stdin)`)
	cmd.Flags().StringVar(&key, "idempotency-key", "", "key that makes a retried enqueue return the first local id")

	return cmd
}

func runEnqueue(cmd *cobra.Command, opts *RootOptions, args []string, file, key string) error {
	f := opts.formatter(cmd)

	payload, err := readPayload(cmd.InOrStdin(), args, file)
	if err != nil {
		return f.Invalid(err.Error())
	}

	c, err := opts.newClient(f)
	if err != nil {
		return err
	}
	id, err := c.EnqueueWithKey(cmd.Context(), key, payload)
	if err != nil {
		return f.Fail("enqueue", err)
	}

	return f.Success(controller.EnqueueResponse{LocalID: id}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Queued %s\n", id)
		return err
	})
}

func readPayload(stdin io.Reader, args []string, file string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case len(args) == 1 && file != "":
		return nil, fmt.Errorf("give the payload as an argument or with --file, not both")
	case len(args) == 1:
		raw = []byte(args[0])
	case file != "" && file != "-":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		raw = data
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		raw = data
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// NewListCommand lists queued transactions.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List queued transactions, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			c, err := rootOpts.newClient(f)
			if err != nil {
				return err
			}
			list, err := c.List(cmd.Context(), statuses...)
			if err != nil {
				return f.Fail("list", err)
			}
			return f.Success(list, func(w io.Writer) error {
				return renderList(w, list)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "only these statuses (pending, syncing, synced, failed)")

	return cmd
}

// NewShowCommand prints one transaction.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <local-id>",
		Short:         "Show one queued transaction",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			c, err := rootOpts.newClient(f)
			if err != nil {
				return err
			}
			tx, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return f.Fail("show", err)
			}
			return f.Success(tx, func(w io.Writer) error {
				return renderTransaction(w, tx)
			})
		},
	}
}

// NewDeleteCommand removes a record regardless of status.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <local-id>",
		Short: "Remove a queued transaction",
		Long: `Remove a transaction from the queue whatever its status. An unsynced
transaction deleted this way is never submitted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			c, err := rootOpts.newClient(f)
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return f.Fail("delete", err)
			}
			return f.Success(map[string]string{"deleted": args[0]}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted %s\n", args[0])
				return err
			})
		},
	}
}

// NewCleanupCommand drops old synced records.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete synced transactions older than a number of days",
		Long: `Delete synced transactions older than --older-than-days. Unsynced
transactions are never removed. Without the flag the daemon's
cleanup.older_than_days applies.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			var olderThan *int
			if cmd.Flags().Changed("older-than-days") {
				if days < 0 {
					return f.Invalid("--older-than-days cannot be negative")
				}
				olderThan = &days
			}

			c, err := rootOpts.newClient(f)
			if err != nil {
				return err
			}
			deleted, err := c.Cleanup(cmd.Context(), olderThan)
			if err != nil {
				return f.Fail("cleanup", err)
			}
			return f.Success(controller.CleanupResponse{Deleted: deleted}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Removed %d synced %s\n", deleted, noun(deleted))
				return err
			})
		},
	}

	cmd.Flags().IntVar(&days, "older-than-days", 0, "retention in days (default: server's cleanup.older_than_days)")

	return cmd
}

func noun(n int) string {
	if n == 1 {
		return "transaction"
	}
	return "transactions"
}
