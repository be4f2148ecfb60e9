package snapshot

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ConflictError describes a single cell whose merge callback declined to
// resolve a commit-time conflict.
type ConflictError struct {
	Cell CellID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("snapshot: cell %d rejected commit merge", e.Cell)
}

// CommitFailed is returned by MutableScope when one or more cells refused
// to merge during phase 1. It aggregates every refusing cell rather than
// just the first, via *multierror.Error, so a caller can inspect the full
// set of conflicts before deciding whether to retry.
type CommitFailed struct {
	Conflicts *multierror.Error
}

func (e *CommitFailed) Error() string {
	return e.Conflicts.Error()
}

func (e *CommitFailed) Unwrap() error {
	return e.Conflicts
}
