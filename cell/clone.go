package cell

import "github.com/mitchellh/copystructure"

// deepCopy produces an independent copy of v using copystructure, a
// reflection-based deep-copy instead of requiring every value type to
// hand-write a Clone method.
// Types that are already copied by value on assignment (numbers, strings,
// small structs with no pointer/slice/map fields) round-trip through this
// unchanged; compound types (slices, maps, nested pointers) are recursively
// duplicated.
func deepCopy[T any](v T) T {
	copied, err := copystructure.Copy(v)
	if err != nil {
		// copystructure only fails on unsupported/cyclic reflect kinds
		// (channels, funcs, unsafe pointers); a cell holding one of those
		// isn't copyable by value, which is a programming error, not a
		// recoverable one.
		panic(err)
	}
	return copied.(T)
}
