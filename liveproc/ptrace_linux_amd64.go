//go:build linux && amd64

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
	return &regs.AMD64Set{
		R15: pr.R15, R14: pr.R14, R13: pr.R13, R12: pr.R12,
		Rbp: pr.Rbp, Rbx: pr.Rbx,
		R11: pr.R11, R10: pr.R10, R9: pr.R9, R8: pr.R8,
		Rax: pr.Rax, Rcx: pr.Rcx, Rdx: pr.Rdx,
		Rsi: pr.Rsi, Rdi: pr.Rdi,
		OrigRax: pr.Orig_rax,
		Rip:     pr.Rip,
		Cs:      pr.Cs,
		Eflags:  pr.Eflags,
		Rsp:     pr.Rsp,
		Ss:      pr.Ss,
		FsBase:  pr.Fs_base, GsBase: pr.Gs_base,
		Ds: pr.Ds, Es: pr.Es, Fs: pr.Fs, Gs: pr.Gs,
	}, true
}
