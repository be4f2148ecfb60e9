package cell

import (
	"sync"

	"github.com/google/go-cmp/cmp"

	snaperrors "github.com/kartikbazzad/snapstate/pkg/errors"
	"github.com/kartikbazzad/snapstate/snapshot"
)

// EqualFunc reports whether two committed values of a cell are equal. The
// default, used when a Cell is constructed with New, is cmp.Equal; a cell
// holding a type cmp can't handle unassisted (e.g. one with unexported
// fields it doesn't know how to compare) should be built with WithEqual.
type EqualFunc[T any] func(a, b T) bool

// MergeFunc resolves a commit-time conflict for a single cell: previous is
// the baseline value observed when the committing scope first wrote the
// cell, current is the value now committed (written by someone else after
// that baseline was taken), and applied is the value the committing scope
// wants to install. Returning ok=false declines the merge, failing the
// whole commit.
type MergeFunc[T any] func(previous, current, applied T) (merged T, ok bool)

// core is the generic, type-erased-facing half of a Cell: it implements
// snapshot.Handle by closing over T via committed and the cell's own
// equal/merge strategy. It never appears in the public API directly; a
// Cell embeds a *core[T] and a *snapshot.Registration together.
type core[T any] struct {
	// committedMu guards committed itself: Apply/ReadCommitted can race
	// against each other across goroutines writing straight through the
	// global root, independent of whatever commitMu a Snapshot uses to
	// serialize a single terminal commit's phase 1/phase 2.
	committedMu sync.RWMutex
	committed   T

	// strategyMu guards equal/merge/policy, which SetMerge/SetMergeExpr/
	// ClearMerge can rewrite concurrently with an in-flight commit calling
	// Merge.
	strategyMu sync.RWMutex
	equal      EqualFunc[T]
	merge      MergeFunc[T]
	policy     *MergePolicy
}

func defaultEqual[T any](a, b T) bool {
	return cmp.Equal(a, b)
}

func (c *core[T]) ReadCommitted() any {
	c.committedMu.RLock()
	defer c.committedMu.RUnlock()
	return deepCopy(c.committed)
}

func (c *core[T]) Apply(value any) {
	v, ok := value.(T)
	if !ok {
		panic(snaperrors.New(snaperrors.TypeMismatch, "cell handle Apply received a foreign type", nil))
	}
	c.committedMu.Lock()
	c.committed = v
	c.committedMu.Unlock()
}

func (c *core[T]) Equal(a, b any) bool {
	av, aok := a.(T)
	bv, bok := b.(T)
	if !aok || !bok {
		panic(snaperrors.New(snaperrors.TypeMismatch, "cell handle Equal received a foreign type", nil))
	}
	c.strategyMu.RLock()
	eq := c.equal
	c.strategyMu.RUnlock()
	return eq(av, bv)
}

func (c *core[T]) Clone(value any) any {
	v, ok := value.(T)
	if !ok {
		panic(snaperrors.New(snaperrors.TypeMismatch, "cell handle Clone received a foreign type", nil))
	}
	return deepCopy(v)
}

func (c *core[T]) Merge(previous, current, applied any) (any, bool) {
	prev, pok := previous.(T)
	cur, cok := current.(T)
	app, aok := applied.(T)
	if !pok || !cok || !aok {
		panic(snaperrors.New(snaperrors.TypeMismatch, "cell handle Merge received a foreign type", nil))
	}

	c.strategyMu.RLock()
	merge := c.merge
	policy := c.policy
	c.strategyMu.RUnlock()

	if merge != nil {
		return merge(prev, cur, app)
	}
	if policy != nil {
		ok, err := policy.Accepts(prev, cur, app)
		if err != nil {
			log().Error("merge policy evaluation failed", "error", err)
			return app, false
		}
		if !ok {
			return app, false
		}
		return app, true
	}
	// No merge strategy configured: the default accepts applied unchanged
	// (a clone of it), the same as every other path that stages applied —
	// a bare commit-time conflict with no merge installed is not itself a
	// failure, it's last-writer-wins.
	return deepCopy(app), true
}

var _ snapshot.Handle = (*core[int])(nil)
