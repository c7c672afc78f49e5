package regs

import "encoding/binary"

// armRegsSize is the size of the 32-bit ARM pt_regs uregs block.
const armRegsSize = 18 * 4

// ARMSet mirrors the 32-bit ARM pt_regs uregs order:
// r0-r10, fp, ip, sp, lr, pc, cpsr, orig_r0.
type ARMSet struct {
	R      [11]uint32 // r0-r10
	Fp     uint32     // r11
	Ip     uint32     // r12
	Sp     uint32     // r13
	Lr     uint32     // r14
	Pc     uint32     // r15
	Cpsr   uint32
	OrigR0 uint32
}

func decodeARM(b []byte) *ARMSet {
	u := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4:]) }
	s := &ARMSet{}
	for i := range s.R {
		s.R[i] = u(i)
	}
	s.Fp = u(11)
	s.Ip = u(12)
	s.Sp = u(13)
	s.Lr = u(14)
	s.Pc = u(15)
	s.Cpsr = u(16)
	s.OrigR0 = u(17)
	return s
}

func (s *ARMSet) Arch() Arch { return ArchARM }
func (s *ARMSet) PC() uint64 { return uint64(s.Pc) }
func (s *ARMSet) SP() uint64 { return uint64(s.Sp) }

func (s *ARMSet) EncodeContext(p []byte) int {
	if len(p) < armRegsSize {
		return 0
	}
	for i, v := range s.R {
		binary.LittleEndian.PutUint32(p[i*4:], v)
	}
	tail := [7]uint32{s.Fp, s.Ip, s.Sp, s.Lr, s.Pc, s.Cpsr, s.OrigR0}
	for i, v := range tail {
		binary.LittleEndian.PutUint32(p[(11+i)*4:], v)
	}
	return armRegsSize
}
