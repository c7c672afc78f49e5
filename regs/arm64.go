package regs

import "encoding/binary"

// arm64RegsSize is the size of the AArch64 user_pt_regs block.
const arm64RegsSize = 34 * 8

// ARM64Set mirrors the AArch64 user_pt_regs layout: x0-x30, sp, pc, pstate.
type ARM64Set struct {
	X      [31]uint64
	Sp     uint64
	Pc     uint64
	Pstate uint64
}

func decodeARM64(b []byte) *ARM64Set {
	u := func(i int) uint64 { return binary.LittleEndian.Uint64(b[i*8:]) }
	s := &ARM64Set{}
	for i := range s.X {
		s.X[i] = u(i)
	}
	s.Sp = u(31)
	s.Pc = u(32)
	s.Pstate = u(33)
	return s
}

func (s *ARM64Set) Arch() Arch { return ArchARM64 }
func (s *ARM64Set) PC() uint64 { return s.Pc }
func (s *ARM64Set) SP() uint64 { return s.Sp }

func (s *ARM64Set) EncodeContext(p []byte) int {
	if len(p) < arm64RegsSize {
		return 0
	}
	for i, v := range s.X {
		binary.LittleEndian.PutUint64(p[i*8:], v)
	}
	binary.LittleEndian.PutUint64(p[31*8:], s.Sp)
	binary.LittleEndian.PutUint64(p[32*8:], s.Pc)
	binary.LittleEndian.PutUint64(p[33*8:], s.Pstate)
	return arm64RegsSize
}
