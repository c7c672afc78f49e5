package corefile

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/debug/elf"

	"github.com/weltkante/clrmd/memory"
	"github.com/weltkante/clrmd/regs"
	"github.com/weltkante/clrmd/target"
)

// Note types beyond what the elf package names.
// See /usr/include/linux/elf.h.
const (
	ntAuxv elf.NType = 6
	ntFile elf.NType = 0x46494c45 // "FILE"
)

const atNull = 0 // auxv terminator tag

// note records where one decoded note's payload lives in the file.
type note struct {
	ntype elf.NType
	name  string
	off   uint64
	size  uint64
}

func align4(v uint64) uint64 { return (v + 3) &^ 3 }

// noteIndex walks every PT_NOTE segment once and records payload
// locations. A truncated note region ends the walk for that segment; the
// notes indexed so far stay usable.
func (f *File) noteIndex() ([]note, error) {
	return f.notes.Load(func() ([]note, error) {
		var notes []note
		for _, ph := range f.progs {
			if ph.typ != elf.PT_NOTE {
				continue
			}
			r := memory.NewReaderAt(f.src, ph.off)
			end := ph.off + ph.filesz
			for r.Pos()+12 <= end {
				namesz, err := r.Uint32()
				if err != nil {
					break
				}
				descsz, err := r.Uint32()
				if err != nil {
					break
				}
				ntype, err := r.Uint32()
				if err != nil {
					break
				}
				name := r.CStringAt(r.Pos(), uint64(namesz))
				r.Skip(align4(uint64(namesz)))
				n := note{
					ntype: elf.NType(ntype),
					name:  name,
					off:   r.Pos(),
					size:  uint64(descsz),
				}
				r.Skip(align4(uint64(descsz)))
				if r.Pos() > end {
					f.log.Debug("truncated note region",
						zap.Uint64("offset", n.off), zap.Uint32("type", ntype))
					break
				}
				notes = append(notes, n)
			}
		}
		f.log.Debug("indexed notes", zap.Int("count", len(notes)))
		return notes, nil
	})
}

func (f *File) findNotes(ntype elf.NType) ([]note, error) {
	notes, err := f.noteIndex()
	if err != nil {
		return nil, err
	}
	var out []note
	for _, n := range notes {
		if n.ntype == ntype {
			out = append(out, n)
		}
	}
	return out, nil
}

// PRSTATUS geometry. The signal number sits at offset 12 (pr_cursig), the
// thread id at 24 (32-bit layouts) or 32 (64-bit layouts), and the register
// block at 72 or 112. See /usr/include/linux/elfcore.h.
func prstatusLayout(a regs.Arch) (sigOff, pidOff, regOff uint64) {
	switch a.PointerSize() {
	case 8:
		return 12, 32, 112
	default:
		return 12, 24, 72
	}
}

func (f *File) decodePRStatus(n note) (target.ThreadStatus, error) {
	sigOff, pidOff, regOff := prstatusLayout(f.march)
	regSize := uint64(regs.ContextSize(f.march))
	if n.size < regOff+regSize {
		return target.ThreadStatus{}, fmt.Errorf("PRSTATUS note is %d bytes, want %d: %w",
			n.size, regOff+regSize, memory.ErrTruncated)
	}

	r := memory.NewReader(f.src)
	sig, ok := r.TryUint32At(n.off + sigOff)
	if !ok {
		return target.ThreadStatus{}, fmt.Errorf("PRSTATUS signal at 0x%x: %w", n.off, memory.ErrTruncated)
	}
	pid, ok := r.TryUint32At(n.off + pidOff)
	if !ok {
		return target.ThreadStatus{}, fmt.Errorf("PRSTATUS pid at 0x%x: %w", n.off, memory.ErrTruncated)
	}
	block := make([]byte, regSize)
	if got := r.BytesAt(n.off+regOff, block); uint64(got) < regSize {
		return target.ThreadStatus{}, fmt.Errorf("PRSTATUS registers at 0x%x: read %d of %d bytes: %w",
			n.off+regOff, got, regSize, memory.ErrTruncated)
	}
	set, err := regs.DecodeRegs(f.march, block)
	if err != nil {
		return target.ThreadStatus{}, err
	}
	return target.ThreadStatus{
		ThreadID: uint64(pid),
		Signal:   sig & 0xffff, // pr_cursig is 16 bits
		Regs:     set,
	}, nil
}

// loadAuxv decodes the NT_AUXV note: {tag, value} pairs in the file's word
// size, terminated by a null tag. There must be a note; a core without one
// is malformed.
func (f *File) loadAuxv() (map[uint64]uint64, error) {
	notes, err := f.findNotes(ntAuxv)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("%w: no NT_AUXV note", ErrFormat)
	}
	n := notes[0]
	word := f.wordSize()
	r := memory.NewReaderAt(f.src, n.off)
	end := n.off + n.size

	auxv := make(map[uint64]uint64)
	for r.Pos()+uint64(2*word) <= end {
		tag, err := r.Word(word)
		if err != nil {
			return nil, err
		}
		val, err := r.Word(word)
		if err != nil {
			return nil, err
		}
		if tag == atNull {
			break
		}
		auxv[tag] = val
	}
	f.log.Debug("loaded auxiliary vector", zap.Int("entries", len(auxv)))
	return auxv, nil
}

// processInfo is the slice of NT_PRPSINFO this package surfaces.
type processInfo struct {
	pid      uint64
	execName string
}

// psinfo geometry: pid at 24 and fname at 40 for 64-bit layouts,
// pid at 12 and fname at 28 for 32-bit.
func (f *File) loadProcessInfo() (processInfo, error) {
	notes, err := f.findNotes(elf.NT_PRPSINFO)
	if err != nil {
		return processInfo{}, err
	}
	if len(notes) == 0 {
		return processInfo{}, fmt.Errorf("no NT_PRPSINFO note: %w", target.ErrUnavailable)
	}
	n := notes[0]
	pidOff, fnameOff := uint64(12), uint64(28)
	if f.wordSize() == 8 {
		pidOff, fnameOff = 24, 40
	}
	r := memory.NewReader(f.src)
	pid, ok := r.TryUint32At(n.off + pidOff)
	if !ok {
		return processInfo{}, fmt.Errorf("PRPSINFO pid at 0x%x: %w", n.off, memory.ErrTruncated)
	}
	return processInfo{
		pid:      uint64(pid),
		execName: r.CStringAt(n.off+fnameOff, 16),
	}, nil
}

// ImageEntry is one mapped range of a loaded image.
type ImageEntry struct {
	Start      uint64
	End        uint64
	FileOffset uint64 // byte offset within the backing file
}

// LoadedImage is one deduplicated entry of the NT_FILE table: a backing
// file path with every range of it mapped into the process. Base is the
// lowest mapped address; Size spans to the highest mapped end.
type LoadedImage struct {
	Path    string
	Base    uint64
	Size    uint64
	Entries []ImageEntry
}

// loadImages decodes the NT_FILE note: a {count, pageSize} header, count
// {start, end, pageOffset} triples in the file's word size, then a packed
// NUL-delimited path per triple. Multiple discontiguous mappings of one
// file accumulate into a single image.
func (f *File) loadImages() ([]LoadedImage, error) {
	notes, err := f.findNotes(ntFile)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("%w: no NT_FILE note", ErrFormat)
	}
	n := notes[0]
	word := f.wordSize()
	r := memory.NewReaderAt(f.src, n.off)
	end := n.off + n.size

	count, err := r.Word(word)
	if err != nil {
		return nil, err
	}
	pageSize, err := r.Word(word)
	if err != nil {
		return nil, err
	}
	if need := uint64(2*word) + count*uint64(3*word); count > n.size || need > n.size {
		return nil, fmt.Errorf("%w: NT_FILE claims %d entries in a %d-byte note", ErrFormat, count, n.size)
	}

	entries := make([]ImageEntry, count)
	for i := range entries {
		start, err := r.Word(word)
		if err != nil {
			return nil, err
		}
		fend, err := r.Word(word)
		if err != nil {
			return nil, err
		}
		pageOff, err := r.Word(word)
		if err != nil {
			return nil, err
		}
		entries[i] = ImageEntry{Start: start, End: fend, FileOffset: pageOff * pageSize}
	}

	// The path table is packed NUL-delimited strings filling the remainder
	// of the note, one path per entry, in entry order.
	byPath := make(map[string]int)
	var images []LoadedImage
	for i := range entries {
		path, err := r.CString(end - r.Pos())
		if err != nil {
			return nil, fmt.Errorf("NT_FILE path %d: %w", i, err)
		}
		k, seen := byPath[path]
		if !seen {
			k = len(images)
			byPath[path] = k
			images = append(images, LoadedImage{Path: path, Base: entries[i].Start})
		}
		img := &images[k]
		img.Entries = append(img.Entries, entries[i])
		if entries[i].Start < img.Base {
			img.Base = entries[i].Start
		}
		if entries[i].End > img.Size { // Size holds the max end until the loop below
			img.Size = entries[i].End
		}
	}
	for i := range images {
		images[i].Size -= images[i].Base
	}
	sort.Slice(images, func(i, k int) bool { return images[i].Base < images[k].Base })
	f.log.Debug("loaded image table",
		zap.Uint64("entries", count), zap.Int("images", len(images)))
	return images, nil
}
