package regs

import "encoding/binary"

// amd64RegsSize is the size of the x86-64 user_regs_struct block.
const amd64RegsSize = 27 * 8

// AMD64Set mirrors the x86-64 user_regs_struct register order.
// See linux arch/x86/include/uapi/asm/ptrace.h.
type AMD64Set struct {
	R15, R14, R13, R12 uint64
	Rbp, Rbx           uint64
	R11, R10, R9, R8   uint64
	Rax, Rcx, Rdx      uint64
	Rsi, Rdi           uint64
	OrigRax            uint64
	Rip                uint64
	Cs                 uint64
	Eflags             uint64
	Rsp                uint64
	Ss                 uint64
	FsBase, GsBase     uint64
	Ds, Es, Fs, Gs     uint64
}

func decodeAMD64(b []byte) *AMD64Set {
	u := func(i int) uint64 { return binary.LittleEndian.Uint64(b[i*8:]) }
	return &AMD64Set{
		R15: u(0), R14: u(1), R13: u(2), R12: u(3),
		Rbp: u(4), Rbx: u(5),
		R11: u(6), R10: u(7), R9: u(8), R8: u(9),
		Rax: u(10), Rcx: u(11), Rdx: u(12),
		Rsi: u(13), Rdi: u(14),
		OrigRax: u(15),
		Rip:     u(16),
		Cs:      u(17),
		Eflags:  u(18),
		Rsp:     u(19),
		Ss:      u(20),
		FsBase:  u(21), GsBase: u(22),
		Ds: u(23), Es: u(24), Fs: u(25), Gs: u(26),
	}
}

func (s *AMD64Set) Arch() Arch { return ArchAMD64 }
func (s *AMD64Set) PC() uint64 { return s.Rip }
func (s *AMD64Set) SP() uint64 { return s.Rsp }

func (s *AMD64Set) EncodeContext(p []byte) int {
	if len(p) < amd64RegsSize {
		return 0
	}
	vals := [27]uint64{
		s.R15, s.R14, s.R13, s.R12,
		s.Rbp, s.Rbx,
		s.R11, s.R10, s.R9, s.R8,
		s.Rax, s.Rcx, s.Rdx,
		s.Rsi, s.Rdi,
		s.OrigRax,
		s.Rip,
		s.Cs,
		s.Eflags,
		s.Rsp,
		s.Ss,
		s.FsBase, s.GsBase,
		s.Ds, s.Es, s.Fs, s.Gs,
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint64(p[i*8:], v)
	}
	return amd64RegsSize
}
