package snapshot

import (
	"log/slog"
	"sync"

	snaperrors "github.com/kartikbazzad/snapstate/pkg/errors"
	"github.com/kartikbazzad/snapstate/pkg/logger"
)

// Mode is the isolation mode of a Snapshot.
type Mode int

const (
	// ModeGlobal is the process-wide root. Writes bypass staging and go
	// straight to cell-resident storage.
	ModeGlobal Mode = iota
	// ModeMutable is a scope whose writes are buffered and committed to
	// its parent on scope exit.
	ModeMutable
	// ModeReadOnly is an observation scope: no writes permitted, carries
	// read/write observer callbacks.
	ModeReadOnly
)

func (m Mode) String() string {
	switch m {
	case ModeGlobal:
		return "global"
	case ModeMutable:
		return "mutable"
	case ModeReadOnly:
		return "read-only"
	default:
		return "unknown"
	}
}

// Observer is called with the type-erased handle of the cell that was just
// read or written. It is invoked synchronously on the goroutine performing
// the get/set; it must not re-enter the same snapshot's mutating methods.
type Observer func(Handle)

// Snapshot is an isolation scope: an id, a mode, a parent link, a
// copy-on-write write buffer, a baseline buffer for conflict detection, and
// optional observer callbacks. See package doc for the overall model.
type Snapshot struct {
	id     ID
	mode   Mode
	parent *Snapshot

	// writeBuf is present iff mode is ModeMutable or ModeGlobal. For
	// ModeGlobal it is allocated but never populated: writes through the
	// root bypass it and apply directly to the cell.
	writeBuf *cellBuffer
	baseline *cellBuffer

	readObserver  Observer
	writeObserver Observer

	// commitMu serializes commits that target this snapshot as a
	// terminal parent (ModeGlobal, or a ModeReadOnly snapshot acting as a
	// dead-end parent for a nested mutable scope). Two concurrent commits
	// to the same parent must not interleave phase 1 and phase 2, or a
	// lost update becomes possible; see DESIGN.md.
	commitMu sync.Mutex
}

var (
	rootOnce sync.Once
	root     *Snapshot
)

// Root returns the process-wide global root snapshot, initializing it
// lazily on first access. The root is never committed and never
// destroyed.
func Root() *Snapshot {
	rootOnce.Do(func() {
		root = &Snapshot{
			id:       RootID,
			mode:     ModeGlobal,
			writeBuf: newCellBuffer(),
			baseline: newCellBuffer(),
		}
	})
	return root
}

// ID returns the snapshot's id. The root's id is 0.
func (s *Snapshot) ID() ID { return s.id }

// IsReadOnly reports whether this snapshot forbids writes.
func (s *Snapshot) IsReadOnly() bool { return s.mode == ModeReadOnly }

// Parent returns the enclosing snapshot, or nil for the global root.
func (s *Snapshot) Parent() *Snapshot { return s.parent }

// Mode returns the snapshot's isolation mode.
func (s *Snapshot) Mode() Mode { return s.mode }

// Depth returns the number of parent links between s and the global root.
// The root itself has depth 0.
func (s *Snapshot) Depth() int {
	d := 0
	for cur := s.parent; cur != nil; cur = cur.parent {
		d++
	}
	return d
}

func newMutableChild(parent *Snapshot) *Snapshot {
	return &Snapshot{
		id:       allocID(),
		mode:     ModeMutable,
		parent:   parent,
		writeBuf: newCellBuffer(),
		baseline: newCellBuffer(),
	}
}

func newReadOnlyChild(parent *Snapshot, read, write Observer) *Snapshot {
	return &Snapshot{
		id:            allocID(),
		mode:          ModeReadOnly,
		parent:        parent,
		baseline:      newCellBuffer(),
		readObserver:  read,
		writeObserver: write,
	}
}

// readFrom implements the read algorithm, starting its search at
// start: walk toward the root, returning the first staged write buffer hit;
// the root always resolves by reading the cell's committed value.
func readFrom(start *Snapshot, id CellID, h Handle) any {
	for cur := start; cur != nil; cur = cur.parent {
		if cur.mode == ModeGlobal {
			return h.ReadCommitted()
		}
		// A read-only scope never stages writes of its own; it is a
		// transparent pass-through to whatever its parent sees.
		if cur.mode == ModeReadOnly {
			continue
		}
		if v, ok := cur.writeBuf.get(id); ok {
			return v
		}
	}
	return h.ReadCommitted()
}

func (s *Snapshot) notifyRead(h Handle) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.readObserver != nil {
			cur.readObserver(h)
		}
	}
}

func (s *Snapshot) notifyWrite(h Handle) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.writeObserver != nil {
			cur.writeObserver(h)
		}
	}
}

// Read performs a tracked read of cell id through s, notifying read
// observers up the parent chain.
func (s *Snapshot) Read(id CellID, h Handle) any {
	v := readFrom(s, id, h)
	s.notifyRead(h)
	return v
}

// Write performs a tracked write of value to cell id through s. It panics
// — a fatal contract violation, not a recoverable error — if s is
// read-only.
func (s *Snapshot) Write(id CellID, h Handle, value any) {
	switch s.mode {
	case ModeReadOnly:
		v := snaperrors.New(snaperrors.WriteToReadOnly, "set() called inside observe_scope", nil)
		log().Error("fatal contract violation", "error", v)
		panic(v)
	case ModeGlobal:
		h.Apply(value)
		s.notifyWrite(h)
		return
	}

	if !s.writeBuf.has(id) {
		baseline := readFrom(s.parent, id, h)
		s.baseline.setIfAbsent(id, baseline)
	}
	s.writeBuf.set(id, value)
	s.notifyWrite(h)
}

// log is the package-wide structured logger, lazily defaulted by
// pkg/logger.
func log() *slog.Logger { return logger.Get() }
