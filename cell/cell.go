// Package cell provides Cell[T], the typed, ergonomic wrapper around the
// untyped snapshot storage layer in package snapshot. A Cell is the unit of
// observable state: created once at any scope depth, read and written
// through whatever snapshot is ambient on the calling goroutine, and
// resolved process-wide by snapshot.CellID without the snapshot package
// ever needing to know T.
package cell

import (
	"log/slog"

	"github.com/kartikbazzad/snapstate/pkg/logger"
	"github.com/kartikbazzad/snapstate/snapshot"
)

// Cell is a typed, snapshot-isolated memory cell holding a value of type T.
// All methods read/write through snapshot.Current(), so a Cell's observed
// value depends on which MutableScope/ObserveScope the calling goroutine
// is nested in, not on any state carried by the Cell itself.
//
// A Cell is safe for concurrent use. Construct with New; release with
// Close if you need deterministic, immediate removal from the process-wide
// registry instead of waiting for garbage collection.
type Cell[T any] struct {
	reg *snapshot.Registration
	h   *core[T]
}

// Option configures a Cell at construction time.
type Option[T any] func(*core[T])

// WithEqual overrides the default cmp.Equal-based equality check used to
// detect whether a cell changed since a commit's baseline was taken.
func WithEqual[T any](eq EqualFunc[T]) Option[T] {
	return func(c *core[T]) { c.equal = eq }
}

// WithMerge installs a merge callback invoked when a commit finds this
// cell changed since baseline. Equivalent to calling SetMerge immediately
// after New.
func WithMerge[T any](m MergeFunc[T]) Option[T] {
	return func(c *core[T]) { c.merge = m }
}

// WithMergeExpr installs a declarative CEL merge policy, compiled
// immediately; a malformed expression panics at construction time rather
// than failing later at commit time. See MergePolicy.
func WithMergeExpr[T any](expr string) Option[T] {
	policy, err := NewMergePolicy(expr)
	if err != nil {
		panic(err)
	}
	return func(c *core[T]) { c.policy = policy }
}

// New creates a Cell holding a copy of initial, registering it with the
// process-wide weak handle registry. If no WithMerge/WithMergeExpr option
// is given and snapshot.LoadEngineConfig configured a process-wide
// DefaultMergeExpr, that expression is compiled and installed as this
// cell's merge policy.
func New[T any](initial T, opts ...Option[T]) *Cell[T] {
	h := &core[T]{
		committed: deepCopy(initial),
		equal:     defaultEqual[T],
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.merge == nil && h.policy == nil {
		if expr, ok := snapshot.DefaultMergePolicyExpr(); ok {
			policy, err := NewMergePolicy(expr)
			if err != nil {
				log().Error("process-wide default merge-policy expression failed to compile; cell falls back to accepting applied on conflict", "expr", expr, "error", err)
			} else {
				h.policy = policy
			}
		}
	}
	reg := snapshot.Register(h)
	log().Debug("cell created", "cell_id", reg.ID())
	return &Cell[T]{reg: reg, h: h}
}

// ID returns the cell's process-wide identity.
func (c *Cell[T]) ID() snapshot.CellID { return c.reg.ID() }

// Get reads the cell's value as observed through the ambient snapshot:
// the nearest enclosing scope's staged write if one exists, walking up to
// the committed value at the global root otherwise.
func (c *Cell[T]) Get() T {
	v := snapshot.Current().Read(c.reg.ID(), c.h)
	return v.(T)
}

// Set stages a write to the cell through the ambient snapshot. Outside any
// MutableScope, this applies directly to the global root. Inside a
// read-only ObserveScope, it panics — a fatal contract violation.
func (c *Cell[T]) Set(v T) {
	snapshot.Current().Write(c.reg.ID(), c.h, deepCopy(v))
}

// Update reads the current value, applies f, and writes the result back.
// It is explicitly NOT atomic: another goroutine's write to the same cell
// between the read and the write of this Update is not observed by f, and
// can only be reconciled later, at commit time, by a merge callback. Callers
// needing read-modify-write atomicity must use a merge policy, not rely on
// Update alone.
func (c *Cell[T]) Update(f func(T) T) {
	c.Set(f(c.Get()))
}

// SetMerge installs or replaces the cell's merge callback, clearing any
// previously configured merge policy expression.
func (c *Cell[T]) SetMerge(m MergeFunc[T]) {
	c.h.strategyMu.Lock()
	defer c.h.strategyMu.Unlock()
	c.h.merge = m
	c.h.policy = nil
}

// SetMergeExpr compiles expr as a CEL merge policy and installs it,
// clearing any previously configured merge callback. Returns the compile
// error, if any, without altering the cell's existing merge strategy.
func (c *Cell[T]) SetMergeExpr(expr string) error {
	policy, err := NewMergePolicy(expr)
	if err != nil {
		return err
	}
	c.h.strategyMu.Lock()
	defer c.h.strategyMu.Unlock()
	c.h.merge = nil
	c.h.policy = policy
	return nil
}

// ClearMerge removes any merge callback or merge policy: a subsequent
// commit-time conflict on this cell accepts the staged value unchanged
// rather than consulting a resolver. A process-wide DefaultMergeExpr that
// New installed is removed as well and is not reinstalled.
func (c *Cell[T]) ClearMerge() {
	c.h.strategyMu.Lock()
	defer c.h.strategyMu.Unlock()
	c.h.merge = nil
	c.h.policy = nil
}

// Close removes the cell from the process-wide registry immediately,
// instead of waiting for it to be garbage collected. Any outstanding
// staged write referencing this cell's id simply becomes unresolvable and
// is dropped at commit time.
func (c *Cell[T]) Close() {
	c.reg.Close()
}

func log() *slog.Logger { return logger.Get() }
