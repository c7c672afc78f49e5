package memory

import (
	"fmt"
	"sort"
)

// Segment maps the virtual range [Addr, Addr+MemSize) onto bytes stored at
// Offset in a backing source. Only the first FileSize bytes are backed;
// the remainder of the range is zero-filled in the target (BSS-like) and
// never has data to relay, so zero-only segments are dropped from the read
// set. Invariant: FileSize <= MemSize.
type Segment struct {
	Addr     uint64
	MemSize  uint64
	FileSize uint64
	Offset   uint64
}

func (s Segment) String() string {
	return fmt.Sprintf("segment{addr:0x%x, memsz:0x%x, filesz:0x%x, off:0x%x}",
		s.Addr, s.MemSize, s.FileSize, s.Offset)
}

// contains reports whether the segment's virtual range covers addr.
func (s Segment) contains(addr uint64) bool {
	return s.Addr <= addr && addr < s.Addr+s.MemSize
}

// SegmentSpace composes a set of segments backed by one source into a
// single linear virtual address space.
type SegmentSpace struct {
	name   string
	source AddressSpace
	segs   []Segment // sorted by Addr, FileSize > 0 only
	length uint64
}

// NewSegmentSpace builds a SegmentSpace from segments in any order.
// The logical length is the maximum Addr+MemSize across all segments,
// including zero-only segments that do not participate in reads.
func NewSegmentSpace(name string, source AddressSpace, segs []Segment) *SegmentSpace {
	sp := &SegmentSpace{name: name, source: source}
	for _, s := range segs {
		if end := s.Addr + s.MemSize; end > sp.length {
			sp.length = end
		}
		if s.FileSize > 0 {
			sp.segs = append(sp.segs, s)
		}
	}
	sort.Slice(sp.segs, func(i, k int) bool { return sp.segs[i].Addr < sp.segs[k].Addr })
	return sp
}

func (sp *SegmentSpace) Name() string   { return sp.name }
func (sp *SegmentSpace) Length() uint64 { return sp.length }

// findSegment finds the segment that contains the given address.
// Binary search for an upper-bound segment, then check if the previous
// segment contains addr.
func (sp *SegmentSpace) findSegment(addr uint64) (Segment, bool) {
	k := sort.Search(len(sp.segs), func(k int) bool {
		return addr < sp.segs[k].Addr
	})
	k--
	if k >= 0 && sp.segs[k].contains(addr) {
		return sp.segs[k], true
	}
	return Segment{}, false
}

// ReadAt reads as many bytes as the composed segments can provide starting
// at off. It clips each step to the containing segment's backed bytes and
// stops at the first gap, zero-fill tail, or short inner read, returning
// the partial count. Holes in a dump simply yield fewer bytes; zeroing the
// unread remainder is the caller's job.
func (sp *SegmentSpace) ReadAt(p []byte, off uint64) int {
	done := 0
	for done < len(p) {
		seg, ok := sp.findSegment(off)
		if !ok {
			break
		}
		rel := off - seg.Addr
		if rel >= seg.FileSize {
			break // inside the zero-filled tail, no data to relay
		}
		n := uint64(len(p) - done)
		if rem := seg.FileSize - rel; rem < n {
			n = rem
		}
		got := sp.source.ReadAt(p[done:done+int(n)], seg.Offset+rel)
		done += got
		off += uint64(got)
		if uint64(got) < n {
			break
		}
	}
	return done
}
