package snapshot

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// DebugString renders the staged write and baseline buffers of s, and of
// every ancestor up to and including the global root, using
// spew for a deep, cycle-safe dump. Intended for tests and interactive
// debugging, not for production logging — it walks and locks every buffer
// in the chain.
func (s *Snapshot) DebugString() string {
	var b strings.Builder
	for cur, depth := s, 0; cur != nil; cur, depth = cur.parent, depth+1 {
		fmt.Fprintf(&b, "snapshot[%d] id=%d mode=%s", depth, cur.id, cur.mode)
		if cur.writeBuf != nil {
			cur.writeBuf.mu.Lock()
			fmt.Fprintf(&b, " writes=%s", spew.Sdump(cur.writeBuf.vals))
			cur.writeBuf.mu.Unlock()
		}
		if cur.baseline != nil {
			cur.baseline.mu.Lock()
			fmt.Fprintf(&b, " baselines=%s", spew.Sdump(cur.baseline.vals))
			cur.baseline.mu.Unlock()
		}
		b.WriteByte('\n')
	}
	return b.String()
}
