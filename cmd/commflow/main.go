// Command commflow is the diagnostics entry point for the library.
//
// Usage:
//
//	commflow bench                        # run the local collective benchmark
//	commflow bench --config config.yaml  # with a config file
//	commflow version                     # show version information
package main

import (
	"fmt"
	"os"
)

// Injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "bench":
		runBench(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("commflow %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `commflow - collective communication diagnostics

Commands:
  bench      Run the local multi-rank collective benchmark
  version    Show version information
  help       Show this message

Flags for bench:
  --config PATH    Config file (YAML); environment overrides apply
  --ranks N        Number of in-process ranks (default 4)
  --rounds N       Collective rounds per phase (default 100)
  --numel N        Elements per tensor (default 1024)
  --metrics ADDR   Serve prometheus metrics on ADDR while running
`)
}
