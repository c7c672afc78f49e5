package memory

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testBacking(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestSegmentSpaceFullyBackedRead(t *testing.T) {
	backing := testBacking(0x100)
	sp := NewSegmentSpace("test", NewByteSpace("backing", backing), []Segment{
		{Addr: 0x1000, MemSize: 0x100, FileSize: 0x100, Offset: 0},
	})

	// For a segment with FileSize == MemSize, a full-size read returns
	// every byte and matches the backing bytes exactly.
	buf := make([]byte, 0x100)
	n := sp.ReadAt(buf, 0x1000)
	require.Equal(t, 0x100, n)
	require.True(t, bytes.Equal(buf, backing))

	// Interior read.
	buf = make([]byte, 0x10)
	n = sp.ReadAt(buf, 0x1020)
	require.Equal(t, 0x10, n)
	require.True(t, bytes.Equal(buf, backing[0x20:0x30]))
}

func TestSegmentSpaceZeroFillTail(t *testing.T) {
	// A 2 KB core whose single load segment covers [0x1000, 0x2000) with
	// only 0x800 backed bytes: a 0x1000-byte request yields exactly 0x800
	// bytes; zero-filling the rest is the caller's job.
	backing := testBacking(0x800)
	sp := NewSegmentSpace("test", NewByteSpace("backing", backing), []Segment{
		{Addr: 0x1000, MemSize: 0x1000, FileSize: 0x800, Offset: 0},
	})

	buf := make([]byte, 0x1000)
	n := sp.ReadAt(buf, 0x1000)
	require.Equal(t, 0x800, n)
	require.True(t, bytes.Equal(buf[:n], backing))

	// A read starting inside the zero-filled tail yields nothing.
	require.Equal(t, 0, sp.ReadAt(buf, 0x1800))
}

func TestSegmentSpaceHoles(t *testing.T) {
	backing := testBacking(0x40)
	sp := NewSegmentSpace("test", NewByteSpace("backing", backing), []Segment{
		{Addr: 0x1000, MemSize: 0x10, FileSize: 0x10, Offset: 0x00},
		{Addr: 0x1010, MemSize: 0x10, FileSize: 0x10, Offset: 0x10}, // adjacent
		{Addr: 0x2000, MemSize: 0x10, FileSize: 0x10, Offset: 0x20}, // gap before
	})

	// Reads cross adjacent segments transparently.
	buf := make([]byte, 0x20)
	n := sp.ReadAt(buf, 0x1000)
	require.Equal(t, 0x20, n)
	require.True(t, bytes.Equal(buf, backing[:0x20]))

	// A read spanning into the gap stops at the boundary with a partial count.
	buf = make([]byte, 0x20)
	n = sp.ReadAt(buf, 0x1018)
	require.Equal(t, 0x08, n)
	require.True(t, bytes.Equal(buf[:n], backing[0x18:0x20]))

	// A read starting inside the gap yields zero bytes, never an error.
	require.Equal(t, 0, sp.ReadAt(buf, 0x1800))
}

func TestSegmentSpaceBeyondEnd(t *testing.T) {
	sp := NewSegmentSpace("test", NewByteSpace("backing", testBacking(0x10)), []Segment{
		{Addr: 0x1000, MemSize: 0x10, FileSize: 0x10, Offset: 0},
	})
	buf := make([]byte, 8)
	if n := sp.ReadAt(buf, 0x1010); n != 0 {
		t.Errorf("read past last segment returned %d bytes, want 0", n)
	}
	if n := sp.ReadAt(buf, 0xffff0000); n != 0 {
		t.Errorf("read far past end returned %d bytes, want 0", n)
	}
}

func TestSegmentSpaceLength(t *testing.T) {
	sp := NewSegmentSpace("test", NewByteSpace("backing", nil), []Segment{
		{Addr: 0x1000, MemSize: 0x1000, FileSize: 0x800, Offset: 0},
		{Addr: 0x8000, MemSize: 0x2000, FileSize: 0, Offset: 0}, // zero-only, still counts
	})
	require.Equal(t, uint64(0xa000), sp.Length())

	// Zero-only segments never participate in reads.
	buf := make([]byte, 8)
	require.Equal(t, 0, sp.ReadAt(buf, 0x8000))
}

func TestSegmentSpaceUnsortedInput(t *testing.T) {
	backing := testBacking(0x30)
	sp := NewSegmentSpace("test", NewByteSpace("backing", backing), []Segment{
		{Addr: 0x3000, MemSize: 0x10, FileSize: 0x10, Offset: 0x20},
		{Addr: 0x1000, MemSize: 0x10, FileSize: 0x10, Offset: 0x00},
		{Addr: 0x2000, MemSize: 0x10, FileSize: 0x10, Offset: 0x10},
	})
	buf := make([]byte, 4)
	for i, addr := range []uint64{0x1000, 0x2000, 0x3000} {
		n := sp.ReadAt(buf, addr)
		require.Equal(t, 4, n)
		require.Equal(t, byte(i*0x10), buf[0], "segment at 0x%x", addr)
	}
}
