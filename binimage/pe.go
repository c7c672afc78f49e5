package binimage

import (
	"debug/pe"
	"fmt"
	"os"

	"github.com/weltkante/clrmd/memory"
)

// comDescriptorDirectory is the index of the COM/metadata data directory
// (IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR) in the PE optional header.
const comDescriptorDirectory = 14

// PEImage is an on-disk PE binary. Relative virtual addresses are
// translated through the section table; the header region maps at rva 0.
type PEImage struct {
	path        string
	f           *os.File
	pf          *pe.File
	space       *memory.SegmentSpace
	timestamp   uint32
	sizeOfImage uint32
	dataDirs    []pe.DataDirectory
}

// OpenPE opens the named PE image.
func OpenPE(path string) (*PEImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	pf, err := pe.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %v", path, err)
	}

	img := &PEImage{
		path:      path,
		f:         f,
		pf:        pf,
		timestamp: pf.FileHeader.TimeDateStamp,
	}

	var sizeOfHeaders uint32
	switch oh := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		img.sizeOfImage = oh.SizeOfImage
		img.dataDirs = oh.DataDirectory[:]
		sizeOfHeaders = oh.SizeOfHeaders
	case *pe.OptionalHeader64:
		img.sizeOfImage = oh.SizeOfImage
		img.dataDirs = oh.DataDirectory[:]
		sizeOfHeaders = oh.SizeOfHeaders
	default:
		f.Close()
		return nil, fmt.Errorf("%s: missing PE optional header", path)
	}

	segs := []memory.Segment{{
		Addr:     0,
		MemSize:  uint64(sizeOfHeaders),
		FileSize: uint64(sizeOfHeaders),
		Offset:   0,
	}}
	for _, sec := range pf.Sections {
		memsz := uint64(sec.VirtualSize)
		if uint64(sec.Size) > memsz {
			memsz = uint64(sec.Size)
		}
		segs = append(segs, memory.Segment{
			Addr:     uint64(sec.VirtualAddress),
			MemSize:  memsz,
			FileSize: uint64(sec.Size),
			Offset:   uint64(sec.Offset),
		})
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	source := memory.NewFileSpaceFrom(f, uint64(st.Size()))
	img.space = memory.NewSegmentSpace(path, source, segs)
	return img, nil
}

func (img *PEImage) Path() string { return img.path }

func (img *PEImage) ReadVirtual(rva uint64, p []byte) int {
	return img.space.ReadAt(p, rva)
}

// Timestamp returns the COFF header link timestamp, the first half of the
// image's identity for backing-image lookup.
func (img *PEImage) Timestamp() uint32 { return img.timestamp }

// SizeOfImage returns the optional header's loaded-image size, the second
// half of the image's identity.
func (img *PEImage) SizeOfImage() uint32 { return img.sizeOfImage }

// MetadataDirectory returns the rva and size of the image's COM/metadata
// directory entry, if present.
func (img *PEImage) MetadataDirectory() (rva, size uint32, ok bool) {
	if len(img.dataDirs) <= comDescriptorDirectory {
		return 0, 0, false
	}
	dir := img.dataDirs[comDescriptorDirectory]
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return 0, 0, false
	}
	return dir.VirtualAddress, dir.Size, true
}

// MetadataBlob resolves the rva and size of the managed metadata stream by
// following the COM descriptor to the COR20 header's MetaData directory.
func (img *PEImage) MetadataBlob() (rva, size uint32, ok bool) {
	corRVA, corSize, ok := img.MetadataDirectory()
	if !ok || corSize < 16 {
		return 0, 0, false
	}
	var cor [16]byte
	if img.ReadVirtual(uint64(corRVA), cor[:]) < 16 {
		return 0, 0, false
	}
	// IMAGE_COR20_HEADER: cb, runtime version, then the MetaData directory.
	rva = uint32(cor[8]) | uint32(cor[9])<<8 | uint32(cor[10])<<16 | uint32(cor[11])<<24
	size = uint32(cor[12]) | uint32(cor[13])<<8 | uint32(cor[14])<<16 | uint32(cor[15])<<24
	if rva == 0 || size == 0 {
		return 0, 0, false
	}
	return rva, size, true
}

func (img *PEImage) Close() error { return img.f.Close() }
