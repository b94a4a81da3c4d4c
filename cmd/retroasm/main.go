// Command retroasm assembles 8/16-bit microprocessor source into a flat
// binary image, using a declarative CPU profile selected with --cpu.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nomad-traveller/multi-cpu-assembler/internal/assemble"
	"github.com/nomad-traveller/multi-cpu-assembler/internal/cpu"
	"github.com/nomad-traveller/multi-cpu-assembler/internal/diag"
	"github.com/nomad-traveller/multi-cpu-assembler/internal/emit"
	"github.com/nomad-traveller/multi-cpu-assembler/internal/expr"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("retroasm", flag.ContinueOnError)
	cpuName := fs.String("cpu", "", "CPU profile name (base filename in the profiles directory)")
	profileDir := fs.String("profile-dir", "./profiles", "directory holding CPU profile documents")
	startAddr := fs.String("start-address", "", "initial origin (decimal, 0x... or $...)")
	output := fs.String("output", "", "output binary path (default: source basename + .bin)")
	fs.StringVar(output, "o", "", "shorthand for --output")
	logFile := fs.String("log-file", "", "diagnostic log file, in addition to stderr")
	listing := fs.String("listing", "", "write a human-readable listing to this path")
	listCPUs := fs.Bool("list-cpus", false, "list available CPU profiles and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: retroasm [options] <source.asm>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *listCPUs {
		return printCPUs(*profileDir)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	if *cpuName == "" {
		fmt.Fprintln(os.Stderr, "error: --cpu is required")
		return exitUsage
	}

	sink, err := diag.New(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}

	prof, err := cpu.Load(profilePath(*profileDir, *cpuName))
	if err != nil {
		sink.Error(0, "%v", err)
		if errors.Is(err, os.ErrNotExist) {
			return exitUsage
		}
		return exitError
	}

	srcPath := fs.Arg(0)
	src, err := os.ReadFile(srcPath)
	if err != nil {
		sink.Error(0, "cannot open source file: %v", err)
		return exitError
	}

	var opts []assemble.Option
	if *startAddr != "" {
		v, err := expr.ParseNumber(*startAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: bad --start-address: %v\n", err)
			return exitUsage
		}
		opts = append(opts, assemble.WithStartAddress(int(v)))
	}

	asm := assemble.New(prof, sink, opts...)
	prog := asm.Assemble(string(src))

	em := &emit.Emitter{FillByte: prof.Info.FillByte}
	if *listing != "" {
		f, err := os.Create(*listing)
		if err != nil {
			sink.Error(0, "cannot open listing file: %v", err)
		} else {
			if err := em.WriteListing(f, prog); err != nil {
				sink.Error(0, "writing listing: %v", err)
			}
			f.Close()
		}
	}

	if !sink.HadErrors() {
		out := *output
		if out == "" {
			out = strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ".bin"
		}
		if err := em.WriteBinary(out, prog); err != nil {
			sink.Error(0, "%v", err)
		}
	}

	fmt.Fprintln(os.Stderr, sink.Summary())
	if sink.HadErrors() {
		return exitError
	}
	return exitOK
}

func profilePath(dir, name string) string {
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		return filepath.Join(dir, name)
	}
	return filepath.Join(dir, name+".yaml")
}

// printCPUs lists the profiles found in dir, the equivalent of the original
// tool's profile-factory enumeration.
func printCPUs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot read profile directory %s: %v\n", dir, err)
		return exitUsage
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Println("no CPU profiles found in", dir)
		return exitOK
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return exitOK
}
