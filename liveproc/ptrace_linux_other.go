//go:build linux && !amd64 && !arm64

package liveproc

import (
	"github.com/weltkante/clrmd/regs"
)

// fetchRegs reports register state as unavailable on architectures this
// backend cannot trace natively.
func fetchRegs(tid int) (regs.Set, bool) {
	return nil, false
}
