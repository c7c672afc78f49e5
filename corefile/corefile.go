// Package corefile implements access to the memory, threads, and loaded
// images of a process contained in a Linux ELF core dump file.
package corefile

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/debug/arch"
	"golang.org/x/debug/elf"

	"github.com/weltkante/clrmd/lazy"
	"github.com/weltkante/clrmd/memory"
	"github.com/weltkante/clrmd/regs"
	"github.com/weltkante/clrmd/target"
)

// ErrFormat marks files this package cannot decode at all: bad magic,
// big-endian data, a non-core ELF type, or a missing required note.
// Format errors are fatal to the whole handle.
var ErrFormat = errors.New("invalid core file")

// File is an opened ELF core dump. The auxiliary vector, the loaded-image
// table, the process info, and the composed memory view are each computed
// at most once and kept for the handle's lifetime; File is not safe for
// concurrent use without external synchronization.
type File struct {
	src *memory.FileSpace
	log *zap.Logger

	hdr   fileHeader
	march regs.Arch
	ainfo arch.Architecture
	progs []progHeader

	notes  lazy.Cell[[]note]
	auxv   lazy.Cell[map[uint64]uint64]
	images lazy.Cell[[]LoadedImage]
	mem    lazy.Cell[*memory.SegmentSpace]
	pinfo  lazy.Cell[processInfo]
}

// Option configures an opened File.
type Option func(*File)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(f *File) { f.log = log }
}

// Open opens and validates the named core file. The ELF header and program
// headers are decoded eagerly; notes and derived tables load lazily.
func Open(path string, opts ...Option) (*File, error) {
	src, err := memory.OpenFileSpace(path)
	if err != nil {
		return nil, err
	}
	f := &File{src: src, log: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.parseHeader(); err != nil {
		src.Close()
		return nil, err
	}
	f.log.Debug("opened core file",
		zap.String("path", path),
		zap.Stringer("arch", f.march),
		zap.Int("progHeaders", len(f.progs)))
	return f, nil
}

// Arch identifies the dumped process's architecture. ArchNone means the
// machine type is recognized as ELF but not supported for register decode;
// operations that do not need decoding remain usable.
func (f *File) Arch() regs.Arch { return f.march }

// PointerSize is the dump's word size in bytes (4 or 8).
func (f *File) PointerSize() int { return f.ainfo.PointerSize }

// ReadMemory reads the dumped virtual address space at addr, composing all
// file-backed load segments. Short counts signal holes in the dump.
func (f *File) ReadMemory(addr uint64, p []byte) int {
	space, _ := f.mem.Load(func() (*memory.SegmentSpace, error) {
		segs := make([]memory.Segment, 0, len(f.progs))
		for _, ph := range f.progs {
			if ph.typ != elf.PT_LOAD {
				continue
			}
			segs = append(segs, memory.Segment{
				Addr:     ph.vaddr,
				MemSize:  ph.memsz,
				FileSize: ph.filesz,
				Offset:   ph.off,
			})
		}
		return memory.NewSegmentSpace(f.src.Name(), f.src, segs), nil
	})
	return space.ReadAt(p, addr)
}

// AuxvValue returns the auxiliary-vector value for the given tag. The auxv
// note is parsed exactly once. Unknown tags yield 0, which is not an error;
// a core without an auxv note is a format error.
func (f *File) AuxvValue(tag uint64) (uint64, error) {
	m, err := f.auxv.Load(f.loadAuxv)
	if err != nil {
		return 0, err
	}
	return m[tag], nil
}

// LoadedImages returns the table of memory-mapped files from the NT_FILE
// note, deduplicated by path and sorted by ascending base address. The
// note is parsed exactly once.
func (f *File) LoadedImages() ([]LoadedImage, error) {
	return f.images.Load(f.loadImages)
}

// Threads decodes every NT_PRSTATUS note into per-thread status records,
// in note order. Requires a supported architecture.
func (f *File) Threads() ([]target.ThreadStatus, error) {
	if f.march == regs.ArchNone {
		return nil, fmt.Errorf("core machine %v: %w", f.hdr.machine, regs.ErrUnsupportedArch)
	}
	notes, err := f.noteIndex()
	if err != nil {
		return nil, err
	}
	pid := f.ProcessID()
	var threads []target.ThreadStatus
	for _, n := range notes {
		if n.ntype != elf.NT_PRSTATUS {
			continue
		}
		ts, err := f.decodePRStatus(n)
		if err != nil {
			return nil, err
		}
		ts.ProcessID = pid
		threads = append(threads, ts)
	}
	f.log.Debug("decoded thread status notes", zap.Int("threads", len(threads)))
	return threads, nil
}

// ThreadContext writes the register context of the given thread into p.
// Reports false when the thread is unknown, the buffer is too small, or
// register decode is unsupported.
func (f *File) ThreadContext(tid uint64, flags uint32, p []byte) bool {
	threads, err := f.Threads()
	if err != nil {
		return false
	}
	for _, t := range threads {
		if t.ThreadID == tid {
			return t.WriteContext(flags, p)
		}
	}
	return false
}

// Modules lists the dump's loaded images as module records.
func (f *File) Modules() ([]target.ModuleInfo, error) {
	images, err := f.LoadedImages()
	if err != nil {
		return nil, err
	}
	mods := make([]target.ModuleInfo, 0, len(images))
	for _, img := range images {
		mods = append(mods, target.ModuleInfo{
			FileName:  img.Path,
			ImageBase: img.Base,
			FileSize:  img.Size,
		})
	}
	return mods, nil
}

// ProcessID returns the dumped process id from the NT_PRPSINFO note,
// or 0 when the note is absent.
func (f *File) ProcessID() uint64 {
	info, err := f.pinfo.Load(f.loadProcessInfo)
	if err != nil {
		return 0
	}
	return info.pid
}

// ExecutablePath returns the dumped process's executable name from the
// NT_PRPSINFO note (truncated by the kernel, usually no directory), or "".
func (f *File) ExecutablePath() string {
	info, err := f.pinfo.Load(f.loadProcessInfo)
	if err != nil {
		return ""
	}
	return info.execName
}

// ClearCaches drops every lazily computed table, including failed ones,
// so the next use recomputes.
func (f *File) ClearCaches() {
	f.notes.Clear()
	f.auxv.Clear()
	f.images.Clear()
	f.mem.Clear()
	f.pinfo.Clear()
}

// Close releases the underlying file. Reads after Close return 0 bytes.
func (f *File) Close() error {
	return f.src.Close()
}

var _ target.DataReader = (*File)(nil)

func (f *File) wordSize() int { return f.ainfo.PointerSize }

// emAARCH64 is EM_AARCH64 (183); the pinned golang.org/x/debug/elf predates
// the constant.
const emAARCH64 = elf.Machine(183)

func machineArch(m elf.Machine) regs.Arch {
	switch m {
	case elf.EM_386:
		return regs.ArchX86
	case elf.EM_X86_64:
		return regs.ArchAMD64
	case elf.EM_ARM:
		return regs.ArchARM
	case emAARCH64:
		return regs.ArchARM64
	}
	return regs.ArchNone
}

func archInfo(cls elf.Class) arch.Architecture {
	size := 4
	if cls == elf.ELFCLASS64 {
		size = 8
	}
	return arch.Architecture{
		PointerSize: size,
		IntSize:     size,
		ByteOrder:   binary.LittleEndian,
	}
}
