// Package sync implements the offline-first synchronization engine: it
// decides, given the local database and the remote backup, whether to push,
// pull, declare a conflict, or do nothing, and it debounces local writes
// into remote backups.
package sync

import "time"

// Status is the authoritative mutable state of the engine. Exactly one value
// holds at any time.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusChecking    Status = "checking"
	StatusSyncingUp   Status = "syncing_up"
	StatusSyncingDown Status = "syncing_down"
	StatusUpToDate    Status = "up_to_date"
	StatusConflict    Status = "conflict"
	StatusError       Status = "error"
)

// ConflictDescriptor captures a detected divergence for the human decision
// point. It is cleared on resolution or on leaving the conflict state.
type ConflictDescriptor struct {
	DriveModified time.Time `json:"driveModified"`
	LocalModified time.Time `json:"localModified"`
	DriveSize     int64     `json:"driveSize,omitempty"`
}

// Choice selects which side wins a conflict resolution.
type Choice string

const (
	// ChoiceLocal keeps local data: the resolution pushes it to the remote.
	ChoiceLocal Choice = "local"
	// ChoiceDrive takes remote data: the resolution pulls and replaces local
	// collections.
	ChoiceDrive Choice = "drive"
	// ChoiceNone dismisses the dialog without resolving; the conflict is
	// re-detected on the next reconciliation.
	ChoiceNone Choice = ""
)
