package syncengine

import "fmt"

// SkipReason says why a drain did not run.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipInProgress       SkipReason = "in_progress"
	SkipOffline          SkipReason = "offline"
	SkipLeaseHeld        SkipReason = "lease_held"
	SkipLeaseUnavailable SkipReason = "lease_unavailable"
	SkipStoreError       SkipReason = "store_error"
)

// Result is the aggregate outcome of one drain. Per-record failures are
// counted here and never returned as errors.
type Result struct {
	Skipped   SkipReason `json:"skipped,omitempty"`
	Attempted int        `json:"attempted"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	// Interrupted is set when the drain stopped early because the lease was lost.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Ran reports whether the drain went past its guards.
func (r Result) Ran() bool {
	return r.Skipped == SkipNone
}

// Message renders the result for the status line.
func (r Result) Message() string {
	switch r.Skipped {
	case SkipInProgress:
		return "Sync already in progress"
	case SkipOffline:
		return "Offline, sync deferred"
	case SkipLeaseHeld:
		return "Another terminal is syncing"
	case SkipLeaseUnavailable:
		return "Sync deferred, lease unavailable"
	case SkipStoreError:
		return "Sync deferred, queue unreadable"
	}

	switch {
	case r.Attempted == 0:
		return "Nothing to sync"
	case r.Failed == 0:
		return fmt.Sprintf("Synced %d %s", r.Succeeded, plural(r.Succeeded))
	default:
		return fmt.Sprintf("Synced %d of %d %s (%d failed)", r.Succeeded, r.Attempted, plural(r.Attempted), r.Failed)
	}
}

func plural(n int) string {
	if n == 1 {
		return "transaction"
	}
	return "transactions"
}
