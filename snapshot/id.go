// Package snapshot implements the isolation core: a nestable hierarchy of
// copy-on-write scopes over a set of observable cells, with atomic commit
// and conflict detection on exit.
//
// The core of the package is agnostic to the type any individual cell
// stores — it talks to cells only through the Handle contract in
// registry.go. The typed wrapper lives in the sibling cell package.
package snapshot

import (
	"sync/atomic"

	snaperrors "github.com/kartikbazzad/snapstate/pkg/errors"
)

// ID identifies a snapshot for its lifetime. The global root is ID 0;
// every other snapshot gets a monotonically increasing ID from nextID.
type ID uint64

// RootID is the ID of the process-wide global root snapshot.
const RootID ID = 0

var nextID atomic.Uint64

// allocID issues the next snapshot ID. Overflow is a fatal contract
// violation: the system has no way to recycle IDs safely.
func allocID() ID {
	v := nextID.Add(1)
	if v == 0 {
		// wrapped around a 64-bit counter; effectively unreachable, but
		// the allocator must fail loudly rather than silently reuse an id.
		panic(snaperrors.New(snaperrors.IDOverflow, "snapshot id allocator wrapped", nil))
	}
	return ID(v)
}
