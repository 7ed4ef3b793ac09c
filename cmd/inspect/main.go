// Command inspect dumps a collection's metadata, documents and assets from
// the configured storage driver. Useful for checking what autosave actually
// persisted.
//
// Usage:
//
//	go run ./cmd/inspect <collection-handle> [document-path]
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"note-editor-core/internal/config"
	"note-editor-core/internal/storage"
	dbstorage "note-editor-core/internal/storage/database"
	"note-editor-core/internal/storage/filesystem"
	"note-editor-core/pkg/database"
	"note-editor-core/pkg/lexical"

	"github.com/fatih/color"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: inspect <collection-handle> [document-path]")
	}
	handle := os.Args[1]

	cfg := config.Load()

	var provider storage.Provider
	switch cfg.Storage.Driver {
	case "postgres":
		gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Fatal("Error: Failed to connect to database:", err)
		}
		p, err := dbstorage.New(gormDB)
		if err != nil {
			log.Fatal("Error: Failed to initialize database storage:", err)
		}
		provider = p
	default:
		p, err := filesystem.New(cfg.Storage.Root)
		if err != nil {
			log.Fatal("Error: Failed to initialize filesystem storage:", err)
		}
		provider = p
	}

	ctx := context.Background()

	color.Cyan("🔍 Inspecting collection: %s (driver: %s)\n", handle, cfg.Storage.Driver)

	meta, err := provider.ReadMetadata(ctx, handle)
	if err != nil {
		color.Red("No metadata: %v", err)
	} else {
		color.Yellow("\n[METADATA]")
		fmt.Printf("Version:            %d\n", meta.Version)
		fmt.Printf("Last opened:        %s\n", meta.LastOpenedDocumentPath)
	}

	docs, err := provider.ListDocuments(ctx, handle)
	if err != nil {
		log.Fatal("Failed to list documents:", err)
	}
	color.Yellow("\n[DOCUMENTS] (%d)", len(docs))
	for _, p := range docs {
		raw, err := provider.ReadDocument(ctx, handle, p)
		if err != nil {
			color.Red("  %s: %v", p, err)
			continue
		}
		fmt.Printf("  %s (%d bytes)\n", p, len(raw))
	}

	assets, err := provider.ListAssets(ctx, handle)
	if err != nil {
		color.Red("Failed to list assets: %v", err)
	} else {
		color.Yellow("\n[ASSETS] (%d)", len(assets))
		for _, a := range assets {
			raw, err := provider.ReadAsset(ctx, handle, a)
			if err != nil {
				color.Red("  %s: %v", a, err)
				continue
			}
			fmt.Printf("  %s (%d bytes)\n", a, len(raw))
		}
	}

	if len(os.Args) > 2 {
		docPath := os.Args[2]
		raw, err := provider.ReadDocument(ctx, handle, docPath)
		if err != nil {
			log.Fatal("Document not found:", err)
		}

		color.Yellow("\n[CONTENT] %s", docPath)
		fmt.Println(lexical.ParseContent(string(raw)))
		color.Green("\nDone.")
	}
}
