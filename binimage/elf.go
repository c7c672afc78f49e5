package binimage

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/debug/elf"

	"github.com/weltkante/clrmd/memory"
)

// ELFImage is an on-disk ELF binary. Relative virtual addresses are
// translated through the PT_LOAD program headers, rebased so that the
// lowest load address maps to rva 0.
type ELFImage struct {
	path  string
	f     *os.File
	ef    *elf.File
	space *memory.SegmentSpace
}

// OpenELF opens the named ELF image.
func OpenELF(path string) (*ELFImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %v", path, err)
	}

	bias := ^uint64(0)
	for _, ph := range ef.Progs {
		if ph.Type == elf.PT_LOAD && ph.Vaddr < bias {
			bias = ph.Vaddr
		}
	}
	var segs []memory.Segment
	if bias != ^uint64(0) {
		for _, ph := range ef.Progs {
			if ph.Type != elf.PT_LOAD {
				continue
			}
			segs = append(segs, memory.Segment{
				Addr:     ph.Vaddr - bias,
				MemSize:  ph.Memsz,
				FileSize: ph.Filesz,
				Offset:   ph.Off,
			})
		}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	source := memory.NewFileSpaceFrom(f, uint64(st.Size()))
	return &ELFImage{
		path:  path,
		f:     f,
		ef:    ef,
		space: memory.NewSegmentSpace(path, source, segs),
	}, nil
}

func (img *ELFImage) Path() string { return img.path }

func (img *ELFImage) ReadVirtual(rva uint64, p []byte) int {
	return img.space.ReadAt(p, rva)
}

// IsSharedObject reports whether the image is a shared-library-style
// (ET_DYN) binary.
func (img *ELFImage) IsSharedObject() bool {
	return img.ef.Type == elf.ET_DYN
}

// BuildID returns the GNU build id note, or nil if the image has none.
func (img *ELFImage) BuildID() []byte {
	sec := img.ef.Section(".note.gnu.build-id")
	if sec == nil {
		return nil
	}
	data, err := sec.Data()
	if err != nil || len(data) < 12 {
		return nil
	}
	namesz := binary.LittleEndian.Uint32(data)
	descsz := binary.LittleEndian.Uint32(data[4:])
	start := 12 + (uint64(namesz)+3)&^3
	end := start + uint64(descsz)
	if end > uint64(len(data)) {
		return nil
	}
	return data[start:end]
}

func (img *ELFImage) Close() error { return img.f.Close() }
