package bridge

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weltkante/clrmd/regs"
	"github.com/weltkante/clrmd/target"
)

type fakeReader struct {
	mem     map[uint64][]byte
	threads []target.ThreadStatus
	mods    []target.ModuleInfo
}

func (r *fakeReader) Arch() regs.Arch  { return regs.ArchAMD64 }
func (r *fakeReader) PointerSize() int { return 8 }

func (r *fakeReader) ReadMemory(addr uint64, p []byte) int {
	for base, data := range r.mem {
		if addr >= base && addr < base+uint64(len(data)) {
			return copy(p, data[addr-base:])
		}
	}
	return 0
}

func (r *fakeReader) Threads() ([]target.ThreadStatus, error) {
	return r.threads, nil
}

func (r *fakeReader) ThreadContext(tid uint64, flags uint32, p []byte) bool {
	for _, th := range r.threads {
		if th.ThreadID == tid {
			return th.WriteContext(flags, p)
		}
	}
	return false
}

func (r *fakeReader) Modules() ([]target.ModuleInfo, error) {
	return append([]target.ModuleInfo(nil), r.mods...), nil
}

func (r *fakeReader) Close() error { return nil }

func testBridge() (*Bridge, *fakeReader) {
	reader := &fakeReader{
		mem: map[uint64][]byte{0x1000: {1, 2, 3, 4, 5, 6, 7, 8}},
		threads: []target.ThreadStatus{
			{ThreadID: 5, ProcessID: 5, Regs: &regs.AMD64Set{Rip: 0x1234, Rsp: 0x5678}},
			{ThreadID: 6, ProcessID: 5},
		},
		mods: []target.ModuleInfo{
			{FileName: "/data/app.dll", ImageBase: 0x10000, FileSize: 0x1000},
			{FileName: "/usr/lib/libbar.so", ImageBase: 0x20000, FileSize: 0x1000},
		},
	}
	return New(target.New(reader, nil)), reader
}

func TestReadVirtual(t *testing.T) {
	b, _ := testBridge()

	p := make([]byte, 4)
	n, st := b.ReadVirtual(0x1000, p)
	require.Equal(t, StatusOK, st)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{1, 2, 3, 4}, p)

	// Partial reads succeed with a short count.
	p = make([]byte, 16)
	n, st = b.ReadVirtual(0x1004, p)
	require.Equal(t, StatusOK, st)
	require.Equal(t, 4, n)

	_, st = b.ReadVirtual(0x9000, p)
	require.Equal(t, StatusNotFound, st)

	_, st = b.ReadVirtual(0x1000, nil)
	require.Equal(t, StatusInvalidArgument, st)
}

func TestWriteVirtualIsNoOp(t *testing.T) {
	b, _ := testBridge()

	n, st := b.WriteVirtual(0x1000, []byte{0xff, 0xff})
	require.Equal(t, StatusOK, st)
	require.Equal(t, 2, n)

	p := make([]byte, 2)
	_, st = b.ReadVirtual(0x1000, p)
	require.Equal(t, StatusOK, st)
	require.Equal(t, []byte{1, 2}, p)
}

func TestGetThreadContext(t *testing.T) {
	b, _ := testBridge()

	ctx := make([]byte, regs.ContextSize(regs.ArchAMD64))
	require.Equal(t, StatusOK, b.GetThreadContext(5, 0, ctx))
	require.Equal(t, uint64(0x1234), binary.LittleEndian.Uint64(ctx[16*8:]))
	require.Equal(t, uint64(0x5678), binary.LittleEndian.Uint64(ctx[19*8:]))

	require.Equal(t, StatusInvalidArgument, b.GetThreadContext(5, 0, ctx[:8]))
	require.Equal(t, StatusNotFound, b.GetThreadContext(99, 0, ctx))
	// Thread 6 exists but has no register state.
	require.Equal(t, StatusNotFound, b.GetThreadContext(6, 0, ctx))
}

func TestCurrentThreadID(t *testing.T) {
	b, _ := testBridge()

	tid, st := b.GetCurrentThreadID()
	require.Equal(t, StatusOK, st)
	require.Equal(t, uint64(5), tid)

	b.SetCurrentThreadID(99)
	tid, st = b.GetCurrentThreadID()
	require.Equal(t, StatusOK, st)
	require.Equal(t, uint64(99), tid)
}

func TestTLSValues(t *testing.T) {
	b, _ := testBridge()

	_, st := b.GetTLSValue(5, 0)
	require.Equal(t, StatusNotFound, st)

	b.SetTLSValue(5, 0, 0xdeadbeef)
	v, st := b.GetTLSValue(5, 0)
	require.Equal(t, StatusOK, st)
	require.Equal(t, uint64(0xdeadbeef), v)

	// Slots are per thread and per index.
	_, st = b.GetTLSValue(6, 0)
	require.Equal(t, StatusNotFound, st)
	_, st = b.GetTLSValue(5, 1)
	require.Equal(t, StatusNotFound, st)
}

func TestGetImageBase(t *testing.T) {
	b, _ := testBridge()

	tests := []struct {
		name string
		want uint64
		st   Status
	}{
		{"app.dll", 0x10000, StatusOK},
		{"app", 0x10000, StatusOK},
		{"APP.DLL", 0x10000, StatusOK},
		{"libbar.so", 0x20000, StatusOK},
		{"libbar", 0x20000, StatusOK},
		{"nope.dll", 0, StatusNotFound},
	}
	for _, test := range tests {
		base, st := b.GetImageBase(test.name)
		if st != test.st || base != test.want {
			t.Errorf("GetImageBase(%q)=0x%x,%v want 0x%x,%v", test.name, base, st, test.want, test.st)
		}
	}
}

func TestGetMetadataArgs(t *testing.T) {
	b, _ := testBridge()

	_, st := b.GetMetadata("app.dll", 0, 0, 0, nil)
	require.Equal(t, StatusInvalidArgument, st)

	// No locator means no backing images to serve metadata from.
	_, st = b.GetMetadata("app.dll", 0, 0, 0, make([]byte, 16))
	require.Equal(t, StatusNotFound, st)
}
