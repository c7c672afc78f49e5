package memory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned by cursor-advancing typed reads that could not
// fill the full record size.
var ErrTruncated = errors.New("truncated data")

// Reader decodes little-endian fixed-layout records from an AddressSpace.
// Cursor-advancing reads (Uint8..Uint64, Word, Skip) move the position by
// exactly the record size and fail with ErrTruncated on a short read.
// The *At variants do not touch the cursor.
type Reader struct {
	space AddressSpace
	pos   uint64
}

func NewReader(space AddressSpace) *Reader {
	return &Reader{space: space}
}

// NewReaderAt returns a Reader positioned at off.
func NewReaderAt(space AddressSpace, off uint64) *Reader {
	return &Reader{space: space, pos: off}
}

// Pos returns the current cursor position.
func (r *Reader) Pos() uint64 { return r.pos }

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(off uint64) { r.pos = off }

// Skip advances the cursor without reading.
func (r *Reader) Skip(n uint64) { r.pos += n }

// BytesAt is the raw primitive all typed reads build on. It copies up to
// len(p) bytes from off and returns the count copied, never an error.
func (r *Reader) BytesAt(off uint64, p []byte) int {
	return r.space.ReadAt(p, off)
}

func (r *Reader) full(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := r.space.ReadAt(buf, r.pos)
	if got < n {
		return nil, fmt.Errorf("read %d of %d bytes at 0x%x in %s: %w",
			got, n, r.pos, r.space.Name(), ErrTruncated)
	}
	r.pos += uint64(n)
	return buf, nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.full(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.full(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.full(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.full(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Word reads an unsigned integer of the target's word size (4 or 8 bytes),
// widened to uint64.
func (r *Reader) Word(size int) (uint64, error) {
	switch size {
	case 4:
		v, err := r.Uint32()
		return uint64(v), err
	case 8:
		return r.Uint64()
	default:
		return 0, fmt.Errorf("unsupported word size %d", size)
	}
}

// TryUint32At reads a uint32 at off without moving the cursor.
// A short read yields ok == false, never an error.
func (r *Reader) TryUint32At(off uint64) (v uint32, ok bool) {
	var b [4]byte
	if r.space.ReadAt(b[:], off) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[:]), true
}

// TryUint64At reads a uint64 at off without moving the cursor.
func (r *Reader) TryUint64At(off uint64) (v uint64, ok bool) {
	var b [8]byte
	if r.space.ReadAt(b[:], off) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b[:]), true
}

// CStringAt reads up to maxLen bytes at off and decodes up to the first NUL
// or the end of the available data. Returns "" when nothing was readable.
func (r *Reader) CStringAt(off, maxLen uint64) string {
	if maxLen == 0 {
		return ""
	}
	buf := make([]byte, maxLen)
	got := r.space.ReadAt(buf, off)
	if got == 0 {
		return ""
	}
	buf = buf[:got]
	if k := bytes.IndexByte(buf, 0); k >= 0 {
		buf = buf[:k]
	}
	return string(buf)
}

// CString reads a NUL-terminated string at the cursor and advances past the
// terminator. Fails with ErrTruncated if the data ends before a NUL within
// maxLen bytes.
func (r *Reader) CString(maxLen uint64) (string, error) {
	if maxLen == 0 {
		return "", nil
	}
	buf := make([]byte, maxLen)
	got := r.space.ReadAt(buf, r.pos)
	k := bytes.IndexByte(buf[:got], 0)
	if k < 0 {
		return "", fmt.Errorf("unterminated string at 0x%x in %s: %w",
			r.pos, r.space.Name(), ErrTruncated)
	}
	r.pos += uint64(k) + 1
	return string(buf[:k]), nil
}
