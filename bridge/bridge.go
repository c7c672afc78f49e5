// Package bridge adapts a target's read, thread, and image operations to
// the fixed function signatures an external native diagnostics component
// calls. Every entry point reports a small integer status instead of an
// error value, and failures never panic across the boundary.
package bridge

import (
	"errors"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/weltkante/clrmd/regs"
	"github.com/weltkante/clrmd/target"
)

// Status is the result code every entry point returns.
type Status int32

const (
	StatusOK Status = iota
	StatusFail
	StatusNotFound
	StatusNotImplemented
	StatusInvalidArgument
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFail:
		return "fail"
	case StatusNotFound:
		return "not found"
	case StatusNotImplemented:
		return "not implemented"
	case StatusInvalidArgument:
		return "invalid argument"
	}
	return "unknown status"
}

type tlsKey struct {
	tid   uint64
	index uint32
}

// Bridge exposes one target through the native call contract. The current
// thread id and TLS slot values can be injected to emulate OS thread-local
// context a dump does not literally encode.
type Bridge struct {
	target *target.Target
	log    *zap.Logger

	curThread    uint64
	curThreadSet bool
	tls          map[tlsKey]uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// New wraps an opened target.
func New(t *target.Target, opts ...Option) *Bridge {
	b := &Bridge{
		target: t,
		log:    zap.NewNop(),
		tls:    make(map[tlsKey]uint64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func statusFor(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, target.ErrNotImplemented):
		return StatusNotImplemented
	case errors.Is(err, target.ErrNotFound), errors.Is(err, target.ErrUnavailable):
		return StatusNotFound
	}
	return StatusFail
}

// ReadVirtual reads target memory at addr, including the on-disk image
// fallback. Partial reads are success; the count tells the caller how far.
func (b *Bridge) ReadVirtual(addr uint64, p []byte) (int, Status) {
	if len(p) == 0 {
		return 0, StatusInvalidArgument
	}
	n, err := b.target.ReadVirtual(addr, p)
	if n == 0 {
		return 0, statusFor(err)
	}
	return n, StatusOK
}

// WriteVirtual acknowledges the requested length without mutating
// anything. The only caller writes as a memory-barrier no-op, so the
// acknowledgment is the whole contract.
func (b *Bridge) WriteVirtual(addr uint64, p []byte) (int, Status) {
	return len(p), StatusOK
}

// GetThreadContext writes the thread's register context into p.
func (b *Bridge) GetThreadContext(tid uint64, flags uint32, p []byte) Status {
	if len(p) < regs.ContextSize(b.target.Reader().Arch()) {
		return StatusInvalidArgument
	}
	if !b.target.Reader().ThreadContext(tid, flags, p) {
		return StatusNotFound
	}
	return StatusOK
}

// GetCurrentThreadID returns the injected current thread id, or the
// target's first thread when none was injected.
func (b *Bridge) GetCurrentThreadID() (uint64, Status) {
	if b.curThreadSet {
		return b.curThread, StatusOK
	}
	threads, err := b.target.Reader().Threads()
	if err != nil || len(threads) == 0 {
		return 0, StatusNotFound
	}
	return threads[0].ThreadID, StatusOK
}

// SetCurrentThreadID injects the thread id subsequent calls pretend is
// current.
func (b *Bridge) SetCurrentThreadID(tid uint64) {
	b.curThread, b.curThreadSet = tid, true
}

// GetTLSValue returns an injected thread-local slot value. Without an
// injection the value is unavailable; dumps do not encode TLS directly.
func (b *Bridge) GetTLSValue(tid uint64, index uint32) (uint64, Status) {
	if v, ok := b.tls[tlsKey{tid, index}]; ok {
		return v, StatusOK
	}
	return 0, StatusNotFound
}

// SetTLSValue injects a thread-local slot value.
func (b *Bridge) SetTLSValue(tid uint64, index uint32, value uint64) {
	b.tls[tlsKey{tid, index}] = value
}

// GetImageBase resolves a module's base address by image name. The name
// matches the module file's basename with or without its extension.
func (b *Bridge) GetImageBase(name string) (uint64, Status) {
	mods, err := b.target.Modules()
	if err != nil {
		return 0, statusFor(err)
	}
	want := strings.ToLower(name)
	for _, m := range mods {
		base := strings.ToLower(filepath.Base(m.FileName))
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if base == want || stem == want {
			return m.ImageBase, StatusOK
		}
	}
	b.log.Debug("image not found", zap.String("name", name))
	return 0, StatusNotFound
}

// GetMetadata copies a metadata blob from the identified image into p.
// A zero rva derives the blob location from the image's metadata
// directory, clipping the read to the directory size.
func (b *Bridge) GetMetadata(fileName string, timestamp, size uint32, rva uint64, p []byte) (int, Status) {
	if len(p) == 0 {
		return 0, StatusInvalidArgument
	}
	n, err := b.target.Metadata(fileName, timestamp, size, rva, p)
	if err != nil {
		return 0, statusFor(err)
	}
	if n == 0 {
		return 0, StatusFail
	}
	return n, StatusOK
}
