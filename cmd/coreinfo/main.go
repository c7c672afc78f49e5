// Coreinfo prints a summary of an ELF core dump or a live process: the
// architecture, threads, loaded modules, and selected auxiliary vector
// entries, plus an optional hex dump of a memory range.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/weltkante/clrmd/corefile"
	"github.com/weltkante/clrmd/target"
)

var (
	pid     = pflag.Int("pid", 0, "inspect a live process instead of a core file")
	verbose = pflag.BoolP("verbose", "v", false, "enable debug logging")
	dump    = pflag.String("dump", "", "hex dump a memory range, given as addr:length in hex")
)

// Selected auxiliary vector tags worth printing.
var auxvTags = []struct {
	tag  uint64
	name string
}{
	{3, "AT_PHDR"},
	{7, "AT_BASE"},
	{9, "AT_ENTRY"},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: coreinfo [flags] corefile\n")
	fmt.Fprintf(os.Stderr, "       coreinfo [flags] --pid N\n")
	pflag.PrintDefaults()
	os.Exit(2)
}

func main() {
	pflag.Usage = usage
	pflag.Parse()

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, "coreinfo:", err)
			os.Exit(1)
		}
		logger = l
	}

	var (
		reader target.DataReader
		err    error
	)
	switch {
	case *pid != 0:
		if pflag.NArg() != 0 {
			usage()
		}
		reader, err = openLive(*pid, logger)
	default:
		if pflag.NArg() != 1 {
			usage()
		}
		reader, err = corefile.Open(pflag.Arg(0), corefile.WithLogger(logger))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "coreinfo:", err)
		os.Exit(1)
	}

	tgt := target.New(reader, nil, target.WithLogger(logger))
	defer tgt.Close()

	fmt.Printf("arch:    %s (%d-byte pointers)\n", reader.Arch(), reader.PointerSize())
	if core, ok := reader.(*corefile.File); ok {
		printCoreInfo(core)
	}
	printThreads(reader)
	printModules(tgt)

	if *dump != "" {
		if err := dumpRange(tgt, *dump); err != nil {
			fmt.Fprintln(os.Stderr, "coreinfo:", err)
			os.Exit(1)
		}
	}
}

func printCoreInfo(core *corefile.File) {
	if pid := core.ProcessID(); pid != 0 {
		fmt.Printf("pid:     %d\n", pid)
	}
	if path := core.ExecutablePath(); path != "" {
		fmt.Printf("exe:     %s\n", path)
	}
	for _, t := range auxvTags {
		v, err := core.AuxvValue(t.tag)
		if err != nil || v == 0 {
			continue
		}
		fmt.Printf("%s: 0x%x\n", t.name, v)
	}
}

func printThreads(reader target.DataReader) {
	threads, err := reader.Threads()
	if err != nil {
		fmt.Fprintln(os.Stderr, "coreinfo: threads:", err)
		return
	}
	fmt.Printf("threads: %d\n", len(threads))
	for _, th := range threads {
		if th.Regs == nil {
			fmt.Printf("  tid %-7d (no register state)\n", th.ThreadID)
			continue
		}
		fmt.Printf("  tid %-7d pc=0x%-16x sp=0x%-16x signal=%d\n",
			th.ThreadID, th.Regs.PC(), th.Regs.SP(), th.Signal)
	}
}

func printModules(tgt *target.Target) {
	mods, err := tgt.Modules()
	if err != nil {
		fmt.Fprintln(os.Stderr, "coreinfo: modules:", err)
		return
	}
	fmt.Printf("modules: %d\n", len(mods))
	for _, m := range mods {
		fmt.Printf("  0x%-16x +0x%-8x %s", m.ImageBase, m.FileSize, m.FileName)
		if len(m.BuildID) > 0 {
			fmt.Printf(" (build id %x)", m.BuildID)
		}
		fmt.Println()
	}
}

func dumpRange(tgt *target.Target, spec string) error {
	addrStr, lenStr, ok := strings.Cut(spec, ":")
	if !ok {
		return fmt.Errorf("bad dump range %q, want addr:length", spec)
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("bad dump address %q: %v", addrStr, err)
	}
	length, err := strconv.ParseUint(strings.TrimPrefix(lenStr, "0x"), 16, 32)
	if err != nil {
		return fmt.Errorf("bad dump length %q: %v", lenStr, err)
	}

	p := make([]byte, length)
	n, err := tgt.ReadVirtual(addr, p)
	if err != nil {
		return err
	}
	if uint64(n) < length {
		fmt.Printf("(short read: %d of %d bytes)\n", n, length)
	}
	fmt.Print(hex.Dump(p[:n]))
	return nil
}
