package introspection

import "unsafe"

// Allocator is the clone-time allocation contract every node type clones
// through (spec.md §4.2, §9). Two implementations share one code path:
// ProbeAllocator only accumulates the byte total a real allocation would
// need; BumpAllocator performs the allocation. Running the same Clone
// calls through both in sequence is what makes "clone tightness" (spec.md
// §8 property 5) checkable: the probe total and the bump total are
// computed by the identical arithmetic.
type Allocator interface {
	// track records that size bytes (already alignment-adjusted by the
	// caller) would be needed for one node, and reports whether the
	// caller should actually materialize the node now.
	track(size uintptr) bool
}

// ProbeAllocator walks the tree without allocating, recording the total
// byte count a subsequent BumpAllocator pass will need.
type ProbeAllocator struct {
	Total uintptr
}

func (p *ProbeAllocator) track(size uintptr) bool {
	p.Total += size
	return false
}

// BumpAllocator walks the tree a second time, this time materializing
// every node. Total is accumulated with the exact same arithmetic as
// ProbeAllocator so the two can be compared for tightness.
type BumpAllocator struct {
	Total uintptr
}

func (b *BumpAllocator) track(size uintptr) bool {
	b.Total += size
	return true
}

func sizeOfString(s string) uintptr {
	return unsafe.Sizeof("") + uintptr(len(s))
}
