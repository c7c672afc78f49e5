package regs

import "encoding/binary"

// x86RegsSize is the size of the i386 user_regs_struct block.
const x86RegsSize = 17 * 4

// X86Set mirrors the i386 user_regs_struct register order.
type X86Set struct {
	Ebx, Ecx, Edx  uint32
	Esi, Edi, Ebp  uint32
	Eax            uint32
	Ds, Es, Fs, Gs uint32
	OrigEax        uint32
	Eip            uint32
	Cs             uint32
	Eflags         uint32
	Esp            uint32
	Ss             uint32
}

func decodeX86(b []byte) *X86Set {
	u := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4:]) }
	return &X86Set{
		Ebx: u(0), Ecx: u(1), Edx: u(2),
		Esi: u(3), Edi: u(4), Ebp: u(5),
		Eax: u(6),
		Ds:  u(7), Es: u(8), Fs: u(9), Gs: u(10),
		OrigEax: u(11),
		Eip:     u(12),
		Cs:      u(13),
		Eflags:  u(14),
		Esp:     u(15),
		Ss:      u(16),
	}
}

func (s *X86Set) Arch() Arch { return ArchX86 }
func (s *X86Set) PC() uint64 { return uint64(s.Eip) }
func (s *X86Set) SP() uint64 { return uint64(s.Esp) }

func (s *X86Set) EncodeContext(p []byte) int {
	if len(p) < x86RegsSize {
		return 0
	}
	vals := [17]uint32{
		s.Ebx, s.Ecx, s.Edx,
		s.Esi, s.Edi, s.Ebp,
		s.Eax,
		s.Ds, s.Es, s.Fs, s.Gs,
		s.OrigEax,
		s.Eip,
		s.Cs,
		s.Eflags,
		s.Esp,
		s.Ss,
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(p[i*4:], v)
	}
	return x86RegsSize
}
