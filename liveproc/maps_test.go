package liveproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMaps = `00400000-00401000 r-xp 00000000 08:01 1234  /bin/foo
00401000-00402000 rw-p 00000000 00:00 0
00600000-00601000 r--p 00001000 08:01 1234  /bin/foo
7f0000000000-7f0000001000 r-xp 00000000 08:01 5678  /usr/lib/libbar.so
7f0000001000-7f0000002000 ---p 00001000 08:01 5678  /usr/lib/libbar.so
7f0000002000-7f0000003000 rw-p 00002000 08:01 5678  /usr/lib/libbar.so
7ffc00000000-7ffc00021000 rw-p 00000000 00:00 0  [stack]
7ffc000ff000-7ffc00100000 r-xp 00000000 00:00 0  [vdso]
`

func TestParseMaps(t *testing.T) {
	entries, err := parseMaps(sampleMaps)
	require.NoError(t, err)
	require.Len(t, entries, 8)

	require.Equal(t, uint64(0x400000), entries[0].Begin)
	require.Equal(t, uint64(0x401000), entries[0].End)
	require.Equal(t, PermRead|PermExecute|PermPrivate, entries[0].Perms)
	require.Equal(t, "/bin/foo", entries[0].Path)

	// Anonymous mapping has no path.
	require.Equal(t, "", entries[1].Path)
	require.Equal(t, PermRead|PermWrite|PermPrivate, entries[1].Perms)

	// Guard page: no permissions at all except private.
	require.Equal(t, PermPrivate, entries[4].Perms)
	require.False(t, entries[4].readable())

	// Pseudo-mappings are treated as pathless.
	require.Equal(t, "", entries[6].Path)
	require.Equal(t, "", entries[7].Path)
}

func TestParseMapsErrors(t *testing.T) {
	tests := []string{
		"zzzz-00401000 r-xp 00000000 08:01 1234",
		"00400000-zzzz r-xp 00000000 08:01 1234",
		"00400000 r-xp 00000000 08:01 1234",
		"00400000-00401000 rx 00000000 08:01 1234",
	}
	for _, line := range tests {
		if _, err := parseMaps(line); err == nil {
			t.Errorf("parseMaps(%q) should fail", line)
		}
	}

	// Blank and short lines are skipped, not errors.
	entries, err := parseMaps("\n\n")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestReadableRun(t *testing.T) {
	entries, err := parseMaps(sampleMaps)
	require.NoError(t, err)

	tests := []struct {
		addr uint64
		want uint64
	}{
		// Adjacent readable entries merge into one run, regardless of a
		// permission downgrade from r-x to rw-.
		{0x400000, 0x2000},
		{0x400800, 0x1800},
		// Run ends at an address gap.
		{0x600000, 0x1000},
		// Run ends at the first non-readable entry (the guard page).
		{0x7f0000000000, 0x1000},
		{0x7f0000000800, 0x800},
		// Starting inside a non-readable entry reads nothing.
		{0x7f0000001000, 0},
		// Unmapped addresses read nothing.
		{0x500000, 0},
		{0xffffffffff000000, 0},
	}
	for _, test := range tests {
		if got := readableRun(entries, test.addr); got != test.want {
			t.Errorf("readableRun(0x%x)=0x%x want 0x%x", test.addr, got, test.want)
		}
	}
}

func TestModulesFromMaps(t *testing.T) {
	entries, err := parseMaps(sampleMaps)
	require.NoError(t, err)

	mods := modulesFromMaps(entries)
	require.Len(t, mods, 2)

	// /bin/foo spans only its own recorded ranges; the adjacent anonymous
	// rw region does not inflate it.
	require.Equal(t, "/bin/foo", mods[0].FileName)
	require.Equal(t, uint64(0x400000), mods[0].ImageBase)
	require.Equal(t, uint64(0x601000-0x400000), mods[0].FileSize)

	require.Equal(t, "/usr/lib/libbar.so", mods[1].FileName)
	require.Equal(t, uint64(0x7f0000000000), mods[1].ImageBase)
	require.Equal(t, uint64(0x3000), mods[1].FileSize)
}
