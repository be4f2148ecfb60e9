package main

import (
	"fmt"
	"log"

	"github.com/sourcegraph/conc"

	"github.com/kartikbazzad/snapstate/cell"
	"github.com/kartikbazzad/snapstate/snapshot"
)

func main() {
	if _, err := snapshot.LoadEngineConfig("SNAPSTATE_"); err != nil {
		log.Fatalf("failed to load engine config: %v", err)
	}

	fmt.Println("Engine ready, global root is snapshot", snapshot.Root().ID())

	balance := cell.New(100, cell.WithMerge(func(previous, current, applied int) (int, bool) {
		// Additive reconciliation: fold in whatever delta this scope
		// wanted to apply on top of whatever is now committed.
		return current + (applied - previous), true
	}))
	defer balance.Close()

	fmt.Println("\nInserting starting balance...")
	fmt.Printf("  - balance = %d\n", balance.Get())

	fmt.Println("\nRunning a mutable scope that deposits 50...")
	_, err := snapshot.MutableScope(func() any {
		balance.Update(func(v int) int { return v + 50 })
		fmt.Printf("  - inside scope, balance = %d\n", balance.Get())
		return nil
	})
	if err != nil {
		log.Fatalf("commit failed: %v", err)
	}
	fmt.Printf("  - committed balance = %d\n", balance.Get())

	fmt.Println("\nObserving reads and writes without touching state...")
	var reads, writes int
	snapshot.ObserveScope(
		func(snapshot.Handle) { reads++ },
		func(snapshot.Handle) { writes++ },
		func() any {
			_ = balance.Get()
			_ = balance.Get()
			return nil
		},
	)
	fmt.Printf("  - observed %d read(s), %d write(s)\n", reads, writes)

	fmt.Println("\nSimulating two concurrent deposits that both commit...")
	var wg conc.WaitGroup
	for i := 0; i < 2; i++ {
		delta := 10 * (i + 1)
		wg.Go(func() {
			_, err := snapshot.MutableScope(func() any {
				balance.Update(func(v int) int { return v + delta })
				return nil
			})
			if err != nil {
				log.Fatalf("concurrent commit failed: %v", err)
			}
		})
	}
	wg.Wait()
	fmt.Printf("  - final balance = %d\n", balance.Get())

	fmt.Println("\nDone.")
}
