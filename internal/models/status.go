package models

// Status represents the lifecycle state of a queue item.
type Status string

const (
	// StatusQueued means the item is waiting for a free concurrency slot.
	StatusQueued Status = "queued"

	// StatusStarting means the item has been popped from the queue and the
	// download capability is being invoked.
	StatusStarting Status = "starting"

	// StatusInProgress means the external capability accepted the request
	// and bytes are (or may be) flowing.
	StatusInProgress Status = "in_progress"

	// StatusPaused means an in-progress transfer was suspended; it is the
	// only non-initial state with a transition back to in_progress.
	StatusPaused Status = "paused"

	// StatusComplete means the transfer finished successfully.
	StatusComplete Status = "complete"

	// StatusInterrupted means the external capability reported a
	// mid-transfer failure.
	StatusInterrupted Status = "interrupted"

	// StatusError means download initiation was rejected.
	StatusError Status = "error"

	// StatusCancelled means the user cancelled the item.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can occur; a terminal
// item is removed from the live queue and snapshotted into history.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusInterrupted || s == StatusError || s == StatusCancelled
}

// IsActive reports whether the item occupies a concurrency slot.
func (s Status) IsActive() bool {
	return s == StatusStarting || s == StatusInProgress
}
