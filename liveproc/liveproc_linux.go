//go:build linux

package liveproc

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/weltkante/clrmd/lazy"
	"github.com/weltkante/clrmd/regs"
	"github.com/weltkante/clrmd/target"
)

// Process reads a running process. The memory map is parsed once per
// cache epoch; ClearCaches starts a new epoch. Not safe for concurrent
// use without external synchronization.
type Process struct {
	pid  int
	mem  *os.File // nil when /proc/pid/mem could not be opened
	log  *zap.Logger
	maps lazy.Cell[[]MapEntry]
}

// Option configures an opened Process.
type Option func(*Process)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(p *Process) { p.log = log }
}

// Open prepares a reader for the given pid. The seekable memory handle is
// the fast path; when it cannot be opened, reads fall back to the
// process_vm_readv syscall.
func Open(pid int, opts ...Option) (*Process, error) {
	if _, err := os.Stat(procPath(pid)); err != nil {
		return nil, fmt.Errorf("no such process %d: %w", pid, err)
	}
	p := &Process{pid: pid, log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	mem, err := os.Open(procPath(pid, "mem"))
	if err != nil {
		p.log.Debug("cannot open process memory handle, using process_vm_readv",
			zap.Int("pid", pid), zap.Error(err))
	} else {
		p.mem = mem
	}
	return p, nil
}

func procPath(pid int, parts ...string) string {
	path := "/proc/" + strconv.Itoa(pid)
	for _, p := range parts {
		path += "/" + p
	}
	return path
}

// Arch identifies the architecture this reader runs as, which is the only
// one it can trace.
func (p *Process) Arch() regs.Arch {
	switch runtime.GOARCH {
	case "386":
		return regs.ArchX86
	case "amd64":
		return regs.ArchAMD64
	case "arm":
		return regs.ArchARM
	case "arm64":
		return regs.ArchARM64
	}
	return regs.ArchNone
}

func (p *Process) PointerSize() int { return p.Arch().PointerSize() }

// Maps returns the parsed memory map for the current cache epoch.
func (p *Process) Maps() ([]MapEntry, error) {
	return p.maps.Load(func() ([]MapEntry, error) {
		data, err := os.ReadFile(procPath(p.pid, "maps"))
		if err != nil {
			return nil, err
		}
		entries, err := parseMaps(string(data))
		if err != nil {
			return nil, err
		}
		p.log.Debug("parsed memory map", zap.Int("entries", len(entries)))
		return entries, nil
	})
}

// ClearCaches drops the cached memory map so the next read reparses it.
func (p *Process) ClearCaches() { p.maps.Clear() }

// ReadMemory reads target memory at addr. The request is first clamped to
// the longest readable contiguous run of map entries starting at addr, so
// a read never crosses an unmapped hole or a non-readable region. A total
// failure yields 0 bytes, never an error.
func (p *Process) ReadMemory(addr uint64, buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	entries, err := p.Maps()
	if err != nil {
		return 0
	}
	run := readableRun(entries, addr)
	if run == 0 {
		return 0
	}
	n := len(buf)
	if run < uint64(n) {
		n = int(run)
	}
	if p.mem != nil {
		if got, _ := p.mem.ReadAt(buf[:n], int64(addr)); got > 0 {
			return got
		}
	}
	return p.readRemote(addr, buf[:n])
}

// readRemote is the scatter-gather fallback for when the memory handle is
// unavailable or refused the read.
func (p *Process) readRemote(addr uint64, buf []byte) int {
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
	if err != nil {
		p.log.Debug("process_vm_readv failed",
			zap.Uint64("addr", addr), zap.Error(err))
		return 0
	}
	return n
}

// Threads enumerates thread ids from the task directory. Register state
// is fetched on demand by ThreadContext, so Regs is nil here.
func (p *Process) Threads() ([]target.ThreadStatus, error) {
	dirs, err := os.ReadDir(procPath(p.pid, "task"))
	if err != nil {
		return nil, err
	}
	var threads []target.ThreadStatus
	for _, d := range dirs {
		tid, err := strconv.ParseUint(d.Name(), 10, 64)
		if err != nil || tid == 0 {
			continue
		}
		threads = append(threads, target.ThreadStatus{
			ThreadID:  tid,
			ProcessID: uint64(p.pid),
		})
	}
	return threads, nil
}

// ThreadContext attaches to the thread, fetches its registers, and writes
// them into buf. Reports false when the thread is gone, tracing is
// refused, or the buffer is too small.
func (p *Process) ThreadContext(tid uint64, flags uint32, buf []byte) bool {
	if tid == 0 {
		return false
	}
	set, ok := fetchRegs(int(tid))
	if !ok {
		return false
	}
	return set.EncodeContext(buf) > 0
}

// Modules derives the loaded-module table from the memory map.
func (p *Process) Modules() ([]target.ModuleInfo, error) {
	entries, err := p.Maps()
	if err != nil {
		return nil, err
	}
	return modulesFromMaps(entries), nil
}

// Close releases the memory handle.
func (p *Process) Close() error {
	if p.mem == nil {
		return nil
	}
	err := p.mem.Close()
	p.mem = nil
	return err
}

var _ target.DataReader = (*Process)(nil)
