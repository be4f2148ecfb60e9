package snapshot

import (
	"sync"
	"testing"

	"github.com/sourcegraph/conc"
)

// testHandle is a minimal int-valued Handle for exercising the snapshot
// engine without depending on package cell.
type testHandle struct {
	mu        sync.Mutex
	committed int
	mergeFn   func(previous, current, applied int) (int, bool)
}

func (h *testHandle) ReadCommitted() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.committed
}

func (h *testHandle) Apply(value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.committed = value.(int)
}

func (h *testHandle) Equal(a, b any) bool {
	return a.(int) == b.(int)
}

func (h *testHandle) Clone(value any) any {
	return value.(int)
}

func (h *testHandle) Merge(previous, current, applied any) (any, bool) {
	if h.mergeFn == nil {
		return applied, false
	}
	merged, ok := h.mergeFn(previous.(int), current.(int), applied.(int))
	return merged, ok
}

func newTestCell(initial int) (CellID, *testHandle, *Registration) {
	h := &testHandle{committed: initial}
	reg := Register(h)
	return reg.ID(), h, reg
}

func TestRootReadWrite(t *testing.T) {
	id, h, reg := newTestCell(42)
	defer reg.Close()

	if got := Root().Read(id, h); got.(int) != 42 {
		t.Fatalf("expected 42, got %v", got)
	}

	Root().Write(id, h, 7)
	if got := Root().Read(id, h); got.(int) != 7 {
		t.Fatalf("expected 7 after direct root write, got %v", got)
	}
}

func TestMutableScopeCommitsOnSuccess(t *testing.T) {
	id, h, reg := newTestCell(1)
	defer reg.Close()

	_, err := MutableScope(func() any {
		Current().Write(id, h, 2)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}

	if got := h.ReadCommitted(); got.(int) != 2 {
		t.Fatalf("expected committed value 2, got %v", got)
	}
}

func TestNestedMutableScopeDefersCommit(t *testing.T) {
	id, h, reg := newTestCell(1)
	defer reg.Close()

	_, err := MutableScope(func() any {
		outer := Current()
		Current().Write(id, h, 10)

		_, innerErr := MutableScope(func() any {
			if got := Current().Read(id, h); got.(int) != 10 {
				t.Fatalf("inner scope should see outer's staged write, got %v", got)
			}
			Current().Write(id, h, 20)
			return nil
		})
		if innerErr != nil {
			t.Fatalf("nested mutable commit should never conflict: %v", innerErr)
		}

		if Current() != outer {
			t.Fatal("ambient snapshot not restored after nested scope exit")
		}
		if got := Current().Read(id, h); got.(int) != 20 {
			t.Fatalf("outer scope should observe inner's committed-up value, got %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected outer commit error: %v", err)
	}
	if got := h.ReadCommitted(); got.(int) != 20 {
		t.Fatalf("expected final committed value 20, got %v", got)
	}
}

func TestObserveScopeRejectsWrite(t *testing.T) {
	id, h, reg := newTestCell(1)
	defer reg.Close()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic writing inside an observe scope")
		}
	}()

	ObserveScope(nil, nil, func() any {
		Current().Write(id, h, 99)
		return nil
	})
}

func TestObserveScopeTracksReadsAndWrites(t *testing.T) {
	id, h, reg := newTestCell(5)
	defer reg.Close()

	var reads, writes int
	ObserveScope(
		func(Handle) { reads++ },
		func(Handle) { writes++ },
		func() any {
			Current().Read(id, h)
			Current().Read(id, h)
			return nil
		},
	)
	if reads != 2 {
		t.Fatalf("expected 2 observed reads, got %d", reads)
	}
	if writes != 0 {
		t.Fatalf("expected 0 observed writes, got %d", writes)
	}

	_, err := MutableScope(func() any {
		return ObserveScope(nil, func(Handle) { writes++ }, func() any {
			_, innerErr := MutableScope(func() any {
				Current().Write(id, h, 6)
				return nil
			})
			if innerErr != nil {
				t.Fatalf("unexpected nested commit error: %v", innerErr)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	// The observe scope's write observer fires twice for this nested write:
	// once when the inner mutable scope stages it (the chain walk in
	// Write reaches up through the observe scope), and once more when the
	// inner scope's commit dead-ends at the observe scope as a terminal
	// parent and phase 2 fires the parent's write observer chain again.
	if writes != 2 {
		t.Fatalf("expected 2 write notifications for the nested commit into an observe scope, got %d", writes)
	}
}

func TestCommitConflictDeclinedWithoutMergePolicy(t *testing.T) {
	id, h, reg := newTestCell(0)
	defer reg.Close()

	_, err := MutableScope(func() any {
		Current().Write(id, h, 1)

		// Simulate a concurrent committer racing ahead of us by applying
		// directly to the root, changing the committed value away from
		// our baseline before our own scope commits.
		Root().Write(id, h, 99)
		return nil
	})

	var conflict *CommitFailed
	if err == nil {
		t.Fatal("expected a commit conflict")
	}
	if !asCommitFailed(err, &conflict) {
		t.Fatalf("expected *CommitFailed, got %T: %v", err, err)
	}
	if got := h.ReadCommitted(); got.(int) != 99 {
		t.Fatalf("declined commit must not overwrite the racing value, got %v", got)
	}
}

func TestCommitConflictResolvedByMerge(t *testing.T) {
	h := &testHandle{committed: 0}
	h.mergeFn = func(previous, current, applied int) (int, bool) {
		// Additive merge: fold in whatever the racing writer added.
		return current + (applied - previous), true
	}
	reg := Register(h)
	defer reg.Close()
	id := reg.ID()

	_, err := MutableScope(func() any {
		Current().Write(id, h, 5) // baseline 0 -> applied 5, delta +5
		Root().Write(id, h, 100)  // racing writer moves committed to 100
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if got := h.ReadCommitted(); got.(int) != 105 {
		t.Fatalf("expected merged value 105, got %v", got)
	}
}

func asCommitFailed(err error, out **CommitFailed) bool {
	cf, ok := err.(*CommitFailed)
	if ok {
		*out = cf
	}
	return ok
}

func TestAmbientRestoresAcrossPanic(t *testing.T) {
	root := Current()

	func() {
		defer func() {
			_ = recover()
		}()
		_, _ = MutableScope(func() any {
			if Current() == root {
				t.Fatal("expected a fresh ambient snapshot inside MutableScope")
			}
			panic("boom")
		})
	}()

	if Current() != root {
		t.Fatal("ambient snapshot not restored after a panicking scope body")
	}
}

func TestWithObserversBracketsArbitrarySpan(t *testing.T) {
	id, h, reg := newTestCell(3)
	defer reg.Close()

	before := Current()

	var reads int
	restore := WithObservers(func(Handle) { reads++ }, nil)
	Current().Read(id, h)
	Current().Read(id, h)
	restore()

	if reads != 2 {
		t.Fatalf("expected 2 observed reads while installed, got %d", reads)
	}
	if Current() != before {
		t.Fatal("ambient snapshot not restored after WithObservers restore")
	}

	Current().Read(id, h)
	if reads != 2 {
		t.Fatalf("expected no further notifications after restore, got %d", reads)
	}
}

func TestConcurrentCommitsSerializeWithoutLostUpdates(t *testing.T) {
	h := &testHandle{committed: 0}
	h.mergeFn = func(previous, current, applied int) (int, bool) {
		return current + (applied - previous), true
	}
	reg := Register(h)
	defer reg.Close()
	id := reg.ID()

	const n = 200
	var wg conc.WaitGroup
	for i := 0; i < n; i++ {
		wg.Go(func() {
			for {
				_, err := MutableScope(func() any {
					v := Current().Read(id, h).(int)
					Current().Write(id, h, v+1)
					return nil
				})
				if err == nil {
					return
				}
			}
		})
	}
	wg.Wait()

	if got := h.ReadCommitted().(int); got != n {
		t.Fatalf("expected %d after %d concurrent increments, got %d", n, n, got)
	}
}
