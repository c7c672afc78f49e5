// Package memory provides address spaces over raw byte sources and typed,
// bounds-checked decoding of fixed-layout records from them.
package memory

import (
	"os"
)

// AddressSpace is a named, possibly sparse byte source addressed by absolute
// offset. ReadAt copies bytes into p and returns the count copied; it never
// fails. A short or zero count means the space has a hole or ends there, and
// callers must treat it as "read what you can", not as an error.
type AddressSpace interface {
	Name() string
	Length() uint64
	ReadAt(p []byte, off uint64) int
}

// ByteSpace is an AddressSpace over an in-memory byte slice.
type ByteSpace struct {
	name string
	data []byte
}

func NewByteSpace(name string, data []byte) *ByteSpace {
	return &ByteSpace{name: name, data: data}
}

func (s *ByteSpace) Name() string   { return s.name }
func (s *ByteSpace) Length() uint64 { return uint64(len(s.data)) }

func (s *ByteSpace) ReadAt(p []byte, off uint64) int {
	if off >= uint64(len(s.data)) {
		return 0
	}
	return copy(p, s.data[off:])
}

// FileSpace is an AddressSpace over an open file, reading with pread so
// that damaged or truncated files surface as short reads rather than
// faults. The length is fixed at open time.
type FileSpace struct {
	f    *os.File
	size uint64
}

// OpenFileSpace opens the named file for reading.
func OpenFileSpace(filename string) (*FileSpace, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileSpace{f: f, size: uint64(st.Size())}, nil
}

// NewFileSpaceFrom wraps an already-open file. The caller keeps ownership
// of the handle; Close on the returned space closes it.
func NewFileSpaceFrom(f *os.File, size uint64) *FileSpace {
	return &FileSpace{f: f, size: size}
}

func (s *FileSpace) Name() string   { return s.f.Name() }
func (s *FileSpace) Length() uint64 { return s.size }

func (s *FileSpace) ReadAt(p []byte, off uint64) int {
	if off >= s.size || int64(off) < 0 {
		return 0
	}
	n, _ := s.f.ReadAt(p, int64(off))
	return n
}

// Close closes the underlying file. Reads after Close return 0 bytes.
func (s *FileSpace) Close() error {
	err := s.f.Close()
	s.size = 0
	return err
}
