package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/cassiomorais/posqueue/internal/application/status"
	"github.com/cassiomorais/posqueue/internal/controller"
)

func renderStatus(w io.Writer, s *status.Snapshot) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Online:\t%s\n", yesNo(s.Online))
	fmt.Fprintf(tw, "Pending:\t%d\n", s.PendingCount)
	fmt.Fprintf(tw, "Syncing:\t%s\n", yesNo(s.Syncing))
	fmt.Fprintf(tw, "Degraded:\t%s\n", yesNo(s.Degraded))
	fmt.Fprintf(tw, "Message:\t%s\n", orDash(s.LastMessage))
	fmt.Fprintf(tw, "Updated:\t%s\n", timestamp(&s.UpdatedAt))
	return tw.Flush()
}

func renderList(w io.Writer, list *controller.ListTransactionsResponse) error {
	if len(list.Transactions) == 0 {
		_, err := fmt.Fprintln(w, "No transactions")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "LOCAL ID\tSTATUS\tRETRIES\tCREATED\tREMOTE ID\tLAST ERROR")
	for _, tx := range list.Transactions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			tx.LocalID,
			tx.Status,
			tx.RetryCount,
			timestamp(&tx.CreatedAt),
			orDash(deref(tx.RemoteID)),
			orDash(deref(tx.LastError)),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d %s\n", list.Count, noun(list.Count))
	return err
}

func renderTransaction(w io.Writer, tx *controller.TransactionResponse) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Local ID:\t%s\n", tx.LocalID)
	fmt.Fprintf(tw, "Status:\t%s\n", tx.Status)
	fmt.Fprintf(tw, "Created:\t%s\n", timestamp(&tx.CreatedAt))
	fmt.Fprintf(tw, "Synced:\t%s\n", timestamp(tx.SyncedAt))
	fmt.Fprintf(tw, "Remote ID:\t%s\n", orDash(deref(tx.RemoteID)))
	fmt.Fprintf(tw, "Retries:\t%d\n", tx.RetryCount)
	fmt.Fprintf(tw, "Last error:\t%s\n", orDash(deref(tx.LastError)))
	fmt.Fprintf(tw, "Payload:\t%s\n", tx.Payload)
	return tw.Flush()
}

func renderSync(w io.Writer, res *controller.SyncResponse) error {
	if _, err := fmt.Fprintln(w, res.Message); err != nil {
		return err
	}
	if res.Interrupted {
		_, err := fmt.Fprintln(w, "Drain stopped early; remaining transactions wait for the next sync")
		return err
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
