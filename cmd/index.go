package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/petrel0/petrel/internal/app"
	"github.com/petrel0/petrel/internal/assistant"
	"github.com/petrel0/petrel/internal/config"
	"github.com/petrel0/petrel/internal/extract"
)

// runIndex extracts text from the given documents, splits it into
// chunks, and indexes them into the target collection.
func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	collection := fs.String("collection", assistant.DefaultCollection, "target collection")
	docType := fs.String("type", "", "document_type metadata for every chunk")
	department := fs.String("department", "", "department metadata for every chunk")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("index: no files given")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("shutdown error", "error", closeErr)
		}
	}()

	total := 0
	for _, path := range fs.Args() {
		indexed, err := indexFile(ctx, a, *collection, path, *docType, *department)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", path, err)
		}
		slog.Info("indexed document",
			"file", path, "collection", *collection, "chunks", indexed)
		total += indexed
	}

	fmt.Printf("Indexed %d chunks from %d files into %q\n", total, fs.NArg(), *collection)
	return nil
}

func indexFile(ctx context.Context, a *app.App, collection, path, docType, department string) (int, error) {
	text, format, err := extract.File(path)
	if err != nil {
		return 0, err
	}

	metadata := map[string]string{
		"source":        filepath.Base(path),
		"document_type": format,
	}
	if docType != "" {
		metadata["document_type"] = docType
	}
	if department != "" {
		metadata["department"] = department
	}

	chunks := a.Splitter.Split(text, metadata)
	return a.Indexer.Index(ctx, collection, chunks)
}
