package queue

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/cassiomorais/posqueue/internal/domain/errors"
)

// DefaultMaxRetries bounds automatic and bulk-manual retries.
const DefaultMaxRetries = 3

// Status is the sync state of a queued transaction.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusSyncing
	StatusSynced
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending: "pending",
	StatusSyncing: "syncing",
	StatusSynced:  "synced",
	StatusFailed:  "failed",
}

// AllStatuses lists every valid status in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusSyncing, StatusSynced, StatusFailed}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus converts the persisted text form back into a Status.
func ParseStatus(text string) (Status, error) {
	for s, name := range statusNames {
		if name == text {
			return s, nil
		}
	}
	return 0, errors.NewValidationError("status", "unknown status "+text)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.ErrInvalidStatus
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Transaction is a business transaction persisted locally until the remote
// ledger accepts it.
type Transaction struct {
	LocalID    string
	Payload    json.RawMessage
	Status     Status
	CreatedAt  time.Time
	SyncedAt   *time.Time
	RemoteID   *string
	RetryCount int
	LastError  *string
}

// NewTransaction creates a pending transaction. The payload is copied and
// kept byte-for-byte.
func NewTransaction(localID string, payload json.RawMessage, now time.Time) (*Transaction, error) {
	if localID == "" {
		return nil, errors.NewValidationError("local_id", "cannot be empty")
	}
	if len(bytes.TrimSpace(payload)) == 0 || !json.Valid(payload) {
		return nil, errors.NewDomainError("invalid_payload", "payload must be valid JSON", errors.ErrInvalidPayload)
	}

	return &Transaction{
		LocalID:    localID,
		Payload:    append(json.RawMessage(nil), payload...),
		Status:     StatusPending,
		CreatedAt:  now,
		RetryCount: 0,
	}, nil
}

var transitions = map[Status][]Status{
	StatusPending: {
		StatusSyncing,
	},
	StatusSyncing: {
		StatusSynced,
		StatusFailed,
		StatusPending, // Crash recovery
	},
	StatusFailed: {
		StatusSyncing, // Drain claims records with retries left
		StatusPending, // Manual retry
	},
	StatusSynced: {}, // Terminal state
}

// CanTransitionTo checks if the transaction can move to the given status
func (t *Transaction) CanTransitionTo(newStatus Status) bool {
	for _, allowed := range transitions[t.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo moves the transaction to a new status
func (t *Transaction) TransitionTo(newStatus Status) error {
	if !t.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+t.Status.String()+" to "+newStatus.String(),
			errors.ErrInvalidStateTransition,
		)
	}
	t.Status = newStatus
	return nil
}

// MarkSyncing claims the transaction for submission.
func (t *Transaction) MarkSyncing() error {
	return t.TransitionTo(StatusSyncing)
}

// MarkSynced records the remote acceptance.
func (t *Transaction) MarkSynced(remoteID string, at time.Time) error {
	if err := t.TransitionTo(StatusSynced); err != nil {
		return err
	}
	t.RemoteID = &remoteID
	t.SyncedAt = &at
	t.LastError = nil
	return nil
}

// MarkFailed records a failed submission attempt.
func (t *Transaction) MarkFailed(reason string) error {
	if err := t.TransitionTo(StatusFailed); err != nil {
		return err
	}
	t.RetryCount++
	t.LastError = &reason
	return nil
}

// Requeue moves a failed transaction back to pending for a manual retry.
// The retry count is kept so the bound still applies.
func (t *Transaction) Requeue(maxRetries int) error {
	if t.Status != StatusFailed {
		return errors.NewDomainError(
			"invalid_transition",
			"only failed transactions can be retried, got "+t.Status.String(),
			errors.ErrInvalidStateTransition,
		)
	}
	if t.RetryCount >= maxRetries {
		return errors.ErrMaxRetriesExceeded
	}
	if err := t.TransitionTo(StatusPending); err != nil {
		return err
	}
	t.LastError = nil
	return nil
}

// ResetRetries is the operator override for a failed transaction that has
// exhausted its retries. It zeroes the retry count.
func (t *Transaction) ResetRetries() error {
	if t.Status != StatusFailed {
		return errors.NewDomainError(
			"invalid_transition",
			"only failed transactions can be reset, got "+t.Status.String(),
			errors.ErrInvalidStateTransition,
		)
	}
	if err := t.TransitionTo(StatusPending); err != nil {
		return err
	}
	t.RetryCount = 0
	t.LastError = nil
	return nil
}

// Recover returns an interrupted submission to pending. The remote outcome
// is unknown so the transaction is submitted again.
func (t *Transaction) Recover() error {
	if t.Status != StatusSyncing {
		return errors.ErrInvalidStateTransition
	}
	return t.TransitionTo(StatusPending)
}

// Eligible reports whether a drain should pick this transaction up.
func (t *Transaction) Eligible(maxRetries int) bool {
	switch t.Status {
	case StatusPending:
		return true
	case StatusFailed:
		return t.RetryCount < maxRetries
	default:
		return false
	}
}

// Unsynced reports whether the transaction still counts as outstanding work.
func (t *Transaction) Unsynced() bool {
	return t.Status == StatusPending || t.Status == StatusSyncing || t.Status == StatusFailed
}

// IsTerminal checks if the transaction is in a terminal state
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusSynced
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Payload = append(json.RawMessage(nil), t.Payload...)
	if t.SyncedAt != nil {
		at := *t.SyncedAt
		c.SyncedAt = &at
	}
	if t.RemoteID != nil {
		id := *t.RemoteID
		c.RemoteID = &id
	}
	if t.LastError != nil {
		msg := *t.LastError
		c.LastError = &msg
	}
	return &c
}
