// Package binimage reads bytes out of on-disk binary images (ELF and PE)
// by image-relative virtual address. It backs the fallback read path used
// when dumped or live memory is unavailable for a file-backed mapping.
package binimage

import (
	"errors"
	"fmt"
	"os"
)

// ErrFormat marks files that are neither ELF nor PE images.
var ErrFormat = errors.New("unrecognized image format")

// Image is an opened on-disk binary. ReadVirtual reads up to len(p) bytes
// at the given relative virtual address, translating it through the image's
// load layout to a file offset; short counts signal unbacked ranges.
type Image interface {
	Path() string
	ReadVirtual(rva uint64, p []byte) int
	Close() error
}

// Open sniffs the file's magic and dispatches to the matching parser.
func Open(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var magic [4]byte
	n, _ := f.ReadAt(magic[:], 0)
	f.Close()
	switch {
	case n >= 4 && magic == [4]byte{0x7f, 'E', 'L', 'F'}:
		return OpenELF(path)
	case n >= 2 && magic[0] == 'M' && magic[1] == 'Z':
		return OpenPE(path)
	}
	return nil, fmt.Errorf("%s: %w", path, ErrFormat)
}
