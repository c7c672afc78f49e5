// Package regs decodes per-architecture register sets from their on-disk
// little-endian layouts and encodes them into context buffers. Layouts are
// decoded field by field at fixed offsets; nothing depends on host struct
// layout matching the target's.
package regs

import (
	"errors"
	"fmt"
)

// ErrUnsupportedArch marks operations that need per-architecture decoding
// for a machine this package does not support.
var ErrUnsupportedArch = errors.New("unsupported architecture")

// Arch identifies a supported target architecture.
type Arch int

const (
	ArchNone Arch = iota
	ArchX86
	ArchAMD64
	ArchARM
	ArchARM64
)

func (a Arch) String() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchAMD64:
		return "amd64"
	case ArchARM:
		return "arm"
	case ArchARM64:
		return "arm64"
	}
	return fmt.Sprintf("Arch(%d)", int(a))
}

// PointerSize returns the architecture's pointer width in bytes.
func (a Arch) PointerSize() int {
	switch a {
	case ArchX86, ArchARM:
		return 4
	case ArchAMD64, ArchARM64:
		return 8
	}
	return 0
}

// Set is a decoded general-purpose register set. EncodeContext writes the
// registers into a caller-supplied context buffer using the architecture's
// kernel register-block layout and returns the bytes written, or 0 when the
// buffer is too small.
type Set interface {
	Arch() Arch
	PC() uint64
	SP() uint64
	EncodeContext(p []byte) int
}

// ContextSize returns the size of the context buffer EncodeContext fills
// for the given architecture, or 0 if the architecture is unsupported.
func ContextSize(a Arch) int {
	switch a {
	case ArchX86:
		return x86RegsSize
	case ArchAMD64:
		return amd64RegsSize
	case ArchARM:
		return armRegsSize
	case ArchARM64:
		return arm64RegsSize
	}
	return 0
}

// DecodeRegs decodes a raw register block for the given architecture.
// The block must be at least ContextSize(a) bytes.
func DecodeRegs(a Arch, b []byte) (Set, error) {
	if want := ContextSize(a); want == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArch, a)
	} else if len(b) < want {
		return nil, fmt.Errorf("%s register block is %d bytes, want %d", a, len(b), want)
	}
	switch a {
	case ArchX86:
		return decodeX86(b), nil
	case ArchAMD64:
		return decodeAMD64(b), nil
	case ArchARM:
		return decodeARM(b), nil
	default:
		return decodeARM64(b), nil
	}
}
