package store

import (
	"context"
	"errors"
	"time"

	"codearena/internal/model"
)

var (
	// ErrUnavailable means the backing store is unreachable or denied the
	// operation. Session creation surfaces it as "feature disabled";
	// best-effort operations (leave, progress) swallow it.
	ErrUnavailable = errors.New("session store unavailable")

	// ErrCodeTaken means Create collided with an existing code.
	ErrCodeTaken = errors.New("session code already exists")
)

// Patch is a shallow merge of session fields. Nil fields are left untouched;
// each set field is last-write-wins. Anything that depends on the prior
// value of Participants must go through Transact instead.
type Patch struct {
	Status          *model.SessionStatus
	TaskDescription *string
	Checkpoints     []string
	StartTime       *time.Time
}

// TxFunc is a transaction body. It receives a private snapshot and returns
// the replacement document. It must be a pure function of the snapshot: the
// store re-runs it whenever the snapshot went stale before commit.
type TxFunc func(current *model.Session) (*model.Session, error)

// Store is the shared session document store. The real deployment backs it
// with Redis; tests and the offline practice mode use the in-memory variant.
// Both are chosen once at startup, never branched per call.
type Store interface {
	// Create writes a fresh document at code. Fails with ErrCodeTaken if
	// the code is already in use.
	Create(ctx context.Context, code string, doc *model.Session) error

	// Get returns the document at code, or (nil, nil) when absent.
	Get(ctx context.Context, code string) (*model.Session, error)

	// MergeUpdate applies a shallow field patch, last-write-wins per field.
	// No-op when the document is absent.
	MergeUpdate(ctx context.Context, code string, patch Patch) error

	// Transact runs fn against the current document under optimistic
	// concurrency control: if a concurrent writer commits first, fn is
	// re-run on a fresh snapshot. fn sees nil when the document is absent.
	Transact(ctx context.Context, code string, fn TxFunc) error

	// Subscribe delivers the latest document to onChange after every
	// committed write, and nil if the document disappears. Intermediate
	// states may be coalesced; consumers must derive behavior from the
	// latest snapshot only. The returned func cancels the subscription.
	Subscribe(ctx context.Context, code string, onChange func(*model.Session)) (func(), error)
}

// ApplyPatch merges a patch into a session document in place.
func ApplyPatch(doc *model.Session, patch Patch) {
	if patch.Status != nil {
		doc.Status = *patch.Status
	}
	if patch.TaskDescription != nil {
		doc.TaskDescription = *patch.TaskDescription
	}
	if patch.Checkpoints != nil {
		doc.Checkpoints = patch.Checkpoints
	}
	if patch.StartTime != nil {
		t := *patch.StartTime
		doc.StartTime = &t
	}
}
