// Package cmd contains the command-line entry points: the HTTP API
// server, document ingestion, and version reporting.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/petrel0/petrel/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.0.1"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point. It handles flag parsing and command
// routing; all application logic lives here so main.go stays minimal.
func Execute() error {
	slog.SetDefault(initLogger())

	if len(os.Args) < 2 {
		printHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "index":
		return runIndex(os.Args[2:])
	case "version", "--version", "-v":
		return printVersionInfo()
	case "help", "--help", "-h":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

// initLogger initializes the structured logger.
//
// Log level is controlled by the DEBUG environment variable:
//   - DEBUG set (any value): debug level logging
//   - DEBUG not set: info level logging
//
// PETREL_LOG_JSON switches to JSON output for log shippers.
func initLogger() *slog.Logger {
	cfg := log.Config{
		Level: slog.LevelInfo,
		JSON:  os.Getenv("PETREL_LOG_JSON") != "",
	}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	return log.New(cfg)
}

// printVersionInfo displays version information.
func printVersionInfo() error {
	fmt.Printf("Petrel v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

// printHelp displays the help message.
func printHelp() {
	fmt.Println("Petrel - AI assistant platform for oil and gas operations")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  petrel serve                 Start the HTTP API server")
	fmt.Println("  petrel index [flags] FILE..  Index documents into a collection")
	fmt.Println("  petrel version               Show version information")
	fmt.Println("  petrel help                  Show this help")
	fmt.Println()
	fmt.Println("Index flags:")
	fmt.Println("  -collection NAME    Target collection (default \"default\")")
	fmt.Println("  -type TYPE          document_type metadata for every chunk")
	fmt.Println("  -department NAME    department metadata for every chunk")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.petrel/config.yaml and PETREL_*")
	fmt.Println("environment variables.")
}
