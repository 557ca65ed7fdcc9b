package cmd

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestInitLoggerDefaultLevel(t *testing.T) {
	t.Setenv("DEBUG", "")
	os.Unsetenv("DEBUG")

	logger := initLogger()
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level enabled without DEBUG set")
	}
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info level disabled")
	}
}

func TestInitLoggerDebugLevel(t *testing.T) {
	t.Setenv("DEBUG", "1")

	logger := initLogger()
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level disabled with DEBUG set")
	}
}

func TestExecuteVersion(t *testing.T) {
	restore := os.Args
	defer func() { os.Args = restore }()

	os.Args = []string{"petrel", "version"}
	if err := Execute(); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	restore := os.Args
	defer func() { os.Args = restore }()

	os.Args = []string{"petrel", "frobnicate"}
	err := Execute()
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("error %q does not name the command", err)
	}
}

func TestIndexRequiresFiles(t *testing.T) {
	err := runIndex([]string{"-collection", "default"})
	if err == nil {
		t.Fatal("expected error when no files are given")
	}
	if !strings.Contains(err.Error(), "no files") {
		t.Errorf("unexpected error: %v", err)
	}
}
