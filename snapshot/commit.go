package snapshot

import (
	"github.com/hashicorp/go-multierror"

	"github.com/kartikbazzad/snapstate/pkg/logger"
)

// commit drains child's write buffer into its parent. Returns
// nil on success (including the always-succeeds nested-mutable case), or a
// *CommitFailed aggregating every cell whose merge declined.
func commit(child *Snapshot) error {
	parent := child.parent
	if parent == nil {
		// Only the global root has no parent, and the root is never
		// itself committed.
		panic("snapshot: attempted to commit a snapshot with no parent")
	}

	if parent.mode == ModeMutable {
		commitIntoMutableParent(child, parent)
		return nil
	}
	return commitIntoTerminalParent(child, parent)
}

// commitIntoMutableParent handles the nested-mutable-scope case: the
// The child's writes and (if needed) baselines are folded into the
// parent's buffers; conflict detection is deferred to whichever ancestor
// eventually commits into the global root (or another terminal parent).
func commitIntoMutableParent(child, parent *Snapshot) {
	entries := child.writeBuf.drain()
	for id, applied := range entries {
		h, ok := resolve(id)
		if !ok {
			// Cell was garbage collected since the write; nothing left
			// to commit it to.
			continue
		}
		if !parent.baseline.has(id) {
			if b, ok := child.baseline.take(id); ok {
				parent.baseline.setIfAbsent(id, b)
			} else {
				parent.baseline.setIfAbsent(id, h.ReadCommitted())
			}
		}
		parent.writeBuf.set(id, applied)
	}
}

type stagedWrite struct {
	id    CellID
	h     Handle
	value any
}

// commitIntoTerminalParent handles the terminal-parent case: the parent is the
// global root, or any other non-mutable snapshot acting as a dead end for
// this commit (a mutable scope nested inside an observe_scope). Phase 1
// detects conflicts against every entry before phase 2 applies anything.
func commitIntoTerminalParent(child, parent *Snapshot) error {
	parent.commitMu.Lock()
	defer parent.commitMu.Unlock()

	clog := logger.WithSnapshot(log(), uint64(child.id))
	entries := child.writeBuf.drain()
	staged := make([]stagedWrite, 0, len(entries))
	var merr *multierror.Error

	for id, applied := range entries {
		h, ok := resolve(id)
		if !ok {
			continue
		}

		current := h.ReadCommitted()
		baseline, hadBaseline := child.baseline.take(id)
		if !hadBaseline {
			baseline = current
		}

		if h.Equal(current, baseline) {
			staged = append(staged, stagedWrite{id: id, h: h, value: applied})
			continue
		}

		merged, ok := h.Merge(baseline, current, applied)
		if !ok {
			merr = multierror.Append(merr, &ConflictError{Cell: id})
			continue
		}
		staged = append(staged, stagedWrite{id: id, h: h, value: merged})
	}

	if merr != nil {
		clog.Debug("commit rejected", "cells", len(entries), "conflicts", len(merr.Errors))
		return &CommitFailed{Conflicts: merr}
	}

	for _, w := range staged {
		w.h.Apply(w.value)
		parent.notifyWrite(w.h)
	}
	clog.Debug("commit applied", "cells", len(staged))
	return nil
}
