package snapshot

import (
	"sync"
	"sync/atomic"
	"weak"

	snaperrors "github.com/kartikbazzad/snapstate/pkg/errors"
)

// CellID is a stable, comparable, hashable identity for a cell, valid for
// the cell's lifetime. Snapshot buffers key on CellID rather than on any
// typed pointer, so the snapshot layer never needs to know a cell's value
// type.
type CellID uint64

// Handle is the type-erased capability set a cell exposes to the snapshot
// layer: enough to read/apply/compare/clone/merge its committed value
// without the snapshot layer knowing T. See cell.Cell for the typed side
// of this contract.
type Handle interface {
	// ReadCommitted returns a value-copy of the cell's current committed
	// value, boxed as any.
	ReadCommitted() any
	// Apply installs value (produced by this same cell's Clone/merge) as
	// the new committed value.
	Apply(value any)
	// Equal reports whether a and b — both produced by this cell — are
	// equal.
	Equal(a, b any) bool
	// Clone deep-copies a value produced by this cell.
	Clone(value any) any
	// Merge resolves a commit-time conflict. previous is the baseline,
	// current is the live committed value, applied is what the committing
	// scope staged. ok is false if the cell declines to merge.
	Merge(previous, current, applied any) (merged any, ok bool)
}

var nextCellID atomic.Uint64

// handleBox is the strong allocation a weak.Pointer resolves to. A Cell
// keeps box alive for as long as the Cell itself is reachable; once the
// Cell is collected, box becomes collectible too and the registry entry
// resolves to nil.
type handleBox struct {
	h Handle
}

var registry sync.Map // CellID -> weak.Pointer[handleBox]

// register allocates a fresh CellID for h and records a weak, non-owning
// reference to it in the process-wide registry. The returned box must be
// kept alive by the caller (typically embedded in the Cell returned to the
// user) for the registry entry to keep resolving.
func register(h Handle) (CellID, *handleBox) {
	n := nextCellID.Add(1)
	if n == 0 {
		panic(snaperrors.New(snaperrors.IDOverflow, "cell id allocator wrapped", nil))
	}
	id := CellID(n)
	box := &handleBox{h: h}
	registry.Store(id, weak.Make(box))
	return id, box
}

// resolve looks up the live Handle for id, or reports ok=false if the cell
// has since been garbage collected. Snapshot code must treat a failed
// resolve as "nothing to do" rather than an error: a write buffer or
// baseline entry for a freed cell is simply stale.
func resolve(id CellID) (Handle, bool) {
	v, found := registry.Load(id)
	if !found {
		return nil, false
	}
	wp := v.(weak.Pointer[handleBox])
	box := wp.Value()
	if box == nil {
		registry.Delete(id)
		return nil, false
	}
	return box.h, true
}

// unregister drops the registry entry for id. Safe to call redundantly;
// used by Cell.Close for deterministic teardown instead of waiting on GC.
func unregister(id CellID) {
	registry.Delete(id)
}

// Registration is the handle-package-facing half of the weak registry: it
// owns the strong reference that keeps a cell's Handle resolvable, and
// hands back the CellID the cell package embeds in its public Cell[T].
// Callers (the cell package) keep a Registration alive for as long as the
// Cell itself is reachable; once both are dropped the registry entry
// becomes collectible.
type Registration struct {
	id  CellID
	box *handleBox
}

// Register allocates a CellID for h and returns a Registration the caller
// must keep alive (typically by embedding it in the value returned to the
// user) for as long as h should remain resolvable process-wide.
func Register(h Handle) *Registration {
	id, box := register(h)
	return &Registration{id: id, box: box}
}

// ID returns the CellID this registration allocated.
func (r *Registration) ID() CellID { return r.id }

// Close removes the registration from the process-wide registry
// immediately, instead of waiting for the Registration to be garbage
// collected. Safe to call more than once.
func (r *Registration) Close() {
	unregister(r.id)
}
