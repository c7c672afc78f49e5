//go:build linux && arm64

package liveproc

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/weltkante/clrmd/regs"
)

// fetchRegs attaches to the thread, waits for it to stop, and reads its
// general-purpose registers. All ptrace requests must come from the same
// OS thread as the attach.
func fetchRegs(tid int) (regs.Set, bool) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := unix.PtraceAttach(tid); err != nil {
		return nil, false
	}
	defer unix.PtraceDetach(tid)

	var status unix.WaitStatus
	if _, err := unix.Wait4(tid, &status, unix.WALL, nil); err != nil {
		return nil, false
	}
	var pr unix.PtraceRegs
	if err := unix.PtraceGetRegs(tid, &pr); err != nil {
		return nil, false
	}
	set := &regs.ARM64Set{
		Sp:     pr.Sp,
		Pc:     pr.Pc,
		Pstate: pr.Pstate,
	}
	copy(set.X[:], pr.Regs[:])
	return set, true
}
