package corefile

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/debug/elf"

	"github.com/weltkante/clrmd/memory"
)

// fileHeader is the decoded ELF identification and header fields this
// package needs. Decoding is explicit, field by field at fixed offsets, so
// a hostile or truncated file fails cleanly instead of faulting.
type fileHeader struct {
	class   elf.Class
	machine elf.Machine
	typ     elf.Type

	phoff     uint64
	phentsize uint64
	phnum     uint64
}

// progHeader is one decoded program header.
type progHeader struct {
	typ    elf.ProgType
	flags  elf.ProgFlag
	off    uint64
	vaddr  uint64
	filesz uint64
	memsz  uint64
}

const (
	elfHeaderSize32 = 52
	elfHeaderSize64 = 64
)

func (f *File) parseHeader() error {
	var ident [16]byte
	if f.src.ReadAt(ident[:], 0) < len(ident) {
		return fmt.Errorf("%w: too small for an ELF header", ErrFormat)
	}
	if ident[0] != 0x7f || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return fmt.Errorf("%w: bad magic", ErrFormat)
	}
	f.hdr.class = elf.Class(ident[4])
	if f.hdr.class != elf.ELFCLASS32 && f.hdr.class != elf.ELFCLASS64 {
		return fmt.Errorf("%w: unknown ELF class %d", ErrFormat, ident[4])
	}
	if elf.Data(ident[5]) != elf.ELFDATA2LSB {
		return fmt.Errorf("%w: only little-endian cores are supported", ErrFormat)
	}

	r := memory.NewReaderAt(f.src, 16)
	typ, err := r.Uint16()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	machine, err := r.Uint16()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	f.hdr.typ = elf.Type(typ)
	f.hdr.machine = elf.Machine(machine)
	if f.hdr.typ != elf.ET_CORE {
		return fmt.Errorf("%w: ELF type is %v, not a core dump", ErrFormat, f.hdr.typ)
	}

	r.Skip(4) // e_version
	if f.hdr.class == elf.ELFCLASS64 {
		r.Skip(8) // e_entry
		if f.hdr.phoff, err = r.Uint64(); err != nil {
			return fmt.Errorf("%w: %v", ErrFormat, err)
		}
		r.Seek(elfHeaderSize64 - 10)
	} else {
		r.Skip(4) // e_entry
		phoff, perr := r.Uint32()
		if perr != nil {
			return fmt.Errorf("%w: %v", ErrFormat, perr)
		}
		f.hdr.phoff = uint64(phoff)
		r.Seek(elfHeaderSize32 - 10)
	}
	// e_phentsize and e_phnum sit 10 bytes before the end of the header
	// for both classes.
	entsize, err := r.Uint16()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	phnum, err := r.Uint16()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	f.hdr.phentsize = uint64(entsize)
	f.hdr.phnum = uint64(phnum)

	f.march = machineArch(f.hdr.machine)
	f.ainfo = archInfo(f.hdr.class)

	return f.parseProgHeaders()
}

func (f *File) parseProgHeaders() error {
	want := uint64(32)
	if f.hdr.class == elf.ELFCLASS64 {
		want = 56
	}
	if f.hdr.phentsize < want {
		return fmt.Errorf("%w: program header entry size %d", ErrFormat, f.hdr.phentsize)
	}
	for i := uint64(0); i < f.hdr.phnum; i++ {
		ph, err := f.parseProgHeader(f.hdr.phoff + i*f.hdr.phentsize)
		if err != nil {
			return err
		}
		if ph.typ == elf.PT_LOAD && ph.memsz < ph.filesz {
			return fmt.Errorf("%w: load segment at 0x%x has memsz < filesz", ErrFormat, ph.vaddr)
		}
		f.log.Debug("program header",
			zap.Stringer("type", ph.typ),
			zap.Uint64("vaddr", ph.vaddr),
			zap.Uint64("filesz", ph.filesz),
			zap.Uint64("memsz", ph.memsz))
		f.progs = append(f.progs, ph)
	}
	return nil
}

func (f *File) parseProgHeader(off uint64) (progHeader, error) {
	r := memory.NewReaderAt(f.src, off)
	var ph progHeader
	var err error

	fail := func(e error) (progHeader, error) {
		return progHeader{}, fmt.Errorf("%w: program header at 0x%x: %v", ErrFormat, off, e)
	}

	typ, err := r.Uint32()
	if err != nil {
		return fail(err)
	}
	ph.typ = elf.ProgType(typ)

	if f.hdr.class == elf.ELFCLASS64 {
		flags, e := r.Uint32()
		if e != nil {
			return fail(e)
		}
		ph.flags = elf.ProgFlag(flags)
		if ph.off, err = r.Uint64(); err != nil {
			return fail(err)
		}
		if ph.vaddr, err = r.Uint64(); err != nil {
			return fail(err)
		}
		r.Skip(8) // p_paddr
		if ph.filesz, err = r.Uint64(); err != nil {
			return fail(err)
		}
		if ph.memsz, err = r.Uint64(); err != nil {
			return fail(err)
		}
		return ph, nil
	}

	u32 := func(dst *uint64) error {
		v, e := r.Uint32()
		*dst = uint64(v)
		return e
	}
	if err = u32(&ph.off); err != nil {
		return fail(err)
	}
	if err = u32(&ph.vaddr); err != nil {
		return fail(err)
	}
	r.Skip(4) // p_paddr
	if err = u32(&ph.filesz); err != nil {
		return fail(err)
	}
	if err = u32(&ph.memsz); err != nil {
		return fail(err)
	}
	flags, err := r.Uint32()
	if err != nil {
		return fail(err)
	}
	ph.flags = elf.ProgFlag(flags)
	return ph, nil
}
