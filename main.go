package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beaglebone/snap6502/assembler"
	"github.com/beaglebone/snap6502/config"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		outputDir   = flag.String("output-dir", "", "Directory for .SAV/RW18 output files (default: config, then current directory)")
		putDirs     = flag.String("put-dirs", "", "Comma-separated search path for PUT includes (default: config)")
		listFile    = flag.String("list-file", "", "Write the assembly listing to this file instead of stdout")
		dumpSymbols = flag.Bool("dump-symbols", false, "Print the symbol table after assembly")
		quiet       = flag.Bool("quiet", false, "Suppress the listing on stdout")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("snap6502 %s\n", Version)
		if Commit != "unknown" {
			fmt.Printf("Commit: %s\n", Commit)
		}
		os.Exit(0)
	}

	if *showHelp || flag.NArg() == 0 {
		printHelp()
		if flag.NArg() == 0 {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	resolvedOutputDir := cfg.OutputDirectory
	if *outputDir != "" {
		resolvedOutputDir = *outputDir
	}

	resolvedPutDirs := splitDirs(cfg.PutDirectories)
	if *putDirs != "" {
		resolvedPutDirs = splitDirs(*putDirs)
	}

	resolvedListFile := cfg.ListFilename
	if *listFile != "" {
		resolvedListFile = *listFile
	}

	exitCode := 0
	for _, srcFile := range flag.Args() {
		if err := assembleOne(srcFile, resolvedOutputDir, resolvedPutDirs, resolvedListFile, *dumpSymbols, *quiet); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", srcFile, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

// assembleOne assembles a single source file to completion, printing (or
// saving) its listing and symbol table and flushing any queued object files.
// Every recorded diagnostic is written to stderr. It returns a non-nil error
// when the source file couldn't be opened, the listing or object files
// couldn't be written, or assembly recorded any error (in which case Flush
// discards queued output).
func assembleOne(srcFile, outputDir string, putDirs []string, listFile string, dumpSymbols, quiet bool) error {
	a := assembler.New()
	a.PutDirs = putDirs

	if err := a.AssembleFile(srcFile); err != nil {
		return err
	}

	fmt.Fprint(os.Stderr, a.Diags.Error())

	listing := a.Listing()
	switch {
	case listFile != "":
		if err := os.WriteFile(listFile, []byte(listing), 0o644); err != nil {
			return fmt.Errorf("failed to write listing file: %w", err)
		}
	case !quiet:
		fmt.Print(listing)
	}

	if dumpSymbols {
		fmt.Print(a.Symbols())
	}

	if err := a.Flush(outputDir); err != nil {
		return fmt.Errorf("failed to save output: %w", err)
	}

	if a.Diags.HasErrors() {
		return fmt.Errorf("assembly failed with %d error(s)", a.Diags.ErrorCount())
	}
	return nil
}

func splitDirs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	dirs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			dirs = append(dirs, filepath.Clean(p))
		}
	}
	return dirs
}

func printHelp() {
	fmt.Printf(`snap6502 %s

Usage: snap6502 [options] <source-file> [source-file...]

Each source file is assembled independently: a failure in one does not
stop the others from being attempted, and the process exits non-zero if
any of them reported an error.

Options:
  -help            Show this help message
  -version         Show version information
  -output-dir DIR  Directory for .SAV/RW18 output files (default: config, then current directory)
  -put-dirs DIRS   Comma-separated search path for PUT includes (default: config)
  -list-file FILE  Write the assembly listing to FILE instead of stdout
  -dump-symbols    Print the symbol table after assembly
  -quiet           Suppress the listing on stdout

Examples:
  # Assemble one file, printing its listing and leaving .SAV output beside it
  snap6502 hello.s

  # Assemble several files, collecting output in a build directory
  snap6502 -output-dir build hello.s utils.s

  # Assemble with PUT includes resolved against a shared directory
  snap6502 -put-dirs ../lib main.s

  # Inspect the symbol table without the listing
  snap6502 -quiet -dump-symbols hello.s
`, Version)
}
