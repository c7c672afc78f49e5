// Package liveproc reads the memory and thread state of a running Linux
// process through the proc pseudo-filesystem and ptrace.
//
// The caller is responsible for privilege: the reading process must be
// allowed to open the target's /proc files (same uid or CAP_SYS_PTRACE),
// or must have attached with ptrace beforehand.
package liveproc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/weltkante/clrmd/target"
)

// Perm is a mapping's permission bit set.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExecute
	PermPrivate
)

// MapEntry is one parsed line of /proc/pid/maps. Pseudo-mappings like
// [heap] and [vdso] are treated as pathless.
type MapEntry struct {
	Begin uint64
	End   uint64
	Perms Perm
	Path  string
}

func (e MapEntry) readable() bool { return e.Perms&PermRead != 0 }

// parseMaps decodes a maps listing: "beginHex-endHex perms offset dev
// inode [path]" per line. Entries arrive sorted by begin address.
func parseMaps(data string) ([]MapEntry, error) {
	var entries []MapEntry
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		begin, end, ok := strings.Cut(fields[0], "-")
		if !ok {
			return nil, fmt.Errorf("malformed maps range %q", fields[0])
		}
		var e MapEntry
		var err error
		if e.Begin, err = strconv.ParseUint(begin, 16, 64); err != nil {
			return nil, fmt.Errorf("parsing begin address: %w", err)
		}
		if e.End, err = strconv.ParseUint(end, 16, 64); err != nil {
			return nil, fmt.Errorf("parsing end address: %w", err)
		}
		perms := fields[1]
		if len(perms) < 4 {
			return nil, fmt.Errorf("malformed permission string %q", perms)
		}
		if perms[0] == 'r' {
			e.Perms |= PermRead
		}
		if perms[1] == 'w' {
			e.Perms |= PermWrite
		}
		if perms[2] == 'x' {
			e.Perms |= PermExecute
		}
		if perms[3] == 'p' {
			e.Perms |= PermPrivate
		}
		if len(fields) >= 6 && !strings.HasPrefix(fields[5], "[") {
			e.Path = strings.Join(fields[5:], " ")
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// findEntry locates the map entry containing addr.
func findEntry(entries []MapEntry, addr uint64) (MapEntry, bool) {
	k := sort.Search(len(entries), func(k int) bool {
		return addr < entries[k].Begin
	})
	k--
	if k >= 0 && addr < entries[k].End {
		return entries[k], true
	}
	return MapEntry{}, false
}

// readableRun returns the longest readable contiguous byte count starting
// at addr. The run ends at an address gap, the map end, or the first entry
// that is not readable; a permission downgrade between readable modes
// (rw to r-) does not end it.
func readableRun(entries []MapEntry, addr uint64) uint64 {
	k := sort.Search(len(entries), func(k int) bool {
		return addr < entries[k].Begin
	})
	k--
	if k < 0 || addr >= entries[k].End || !entries[k].readable() {
		return 0
	}
	run := entries[k].End - addr
	for k+1 < len(entries) && entries[k+1].Begin == entries[k].End && entries[k+1].readable() {
		k++
		run += entries[k].End - entries[k].Begin
	}
	return run
}

// modulesFromMaps derives the loaded-module table from file-backed map
// entries. A module's range spans only the entries recorded for its own
// path; adjacent anonymous regions contribute nothing.
func modulesFromMaps(entries []MapEntry) []target.ModuleInfo {
	byPath := make(map[string]int)
	var mods []target.ModuleInfo
	for _, e := range entries {
		if e.Path == "" {
			continue
		}
		k, seen := byPath[e.Path]
		if !seen {
			k = len(mods)
			byPath[e.Path] = k
			mods = append(mods, target.ModuleInfo{FileName: e.Path, ImageBase: e.Begin})
		}
		if end := e.End - mods[k].ImageBase; end > mods[k].FileSize {
			mods[k].FileSize = end
		}
	}
	sort.Slice(mods, func(i, k int) bool { return mods[i].ImageBase < mods[k].ImageBase })
	return mods
}
