package snapshot

import (
	"sync"

	"github.com/petermattis/goid"
)

// ambient tracks, per goroutine, the Snapshot currently installed as
// current. Goroutine IDs are recycled by the runtime once a goroutine
// exits, but every entry is removed on scope exit (see enter/restore
// below), so a recycled ID never observes a stale snapshot — it simply
// finds no entry and falls back to the global root, exactly as a brand
// new goroutine would.
var ambient sync.Map // int64 (goroutine id) -> *Snapshot

// Current returns the snapshot currently installed on the calling
// goroutine, or the global root if none is installed.
func Current() *Snapshot {
	gid := goid.Get()
	if v, ok := ambient.Load(gid); ok {
		return v.(*Snapshot)
	}
	return Root()
}

// token restores the ambient slot on a goroutine to whatever it held
// before enter was called. Exit is idempotent-safe to call once via
// defer; calling it more than once re-applies the same restoration.
type token struct {
	gid      int64
	previous *Snapshot
	hadPrev  bool
}

// enter installs s as the ambient snapshot for the calling goroutine and
// returns a token that restores the prior value. enter/token compose as a
// stack: nested enters each remember their own immediate predecessor.
func enter(s *Snapshot) *token {
	gid := goid.Get()
	prev, hadPrev := ambient.Load(gid)
	ambient.Store(gid, s)
	t := &token{gid: gid}
	if hadPrev {
		t.previous = prev.(*Snapshot)
		t.hadPrev = true
	}
	return t
}

// exit restores the ambient slot to what it held immediately before the
// matching enter. Safe to invoke from a deferred call on any exit path,
// including a panicking one.
func (t *token) exit() {
	if t.hadPrev {
		ambient.Store(t.gid, t.previous)
	} else {
		ambient.Delete(t.gid)
	}
}
