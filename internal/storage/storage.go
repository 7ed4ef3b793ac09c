// Package storage defines the persistence provider contract the edit-session
// core consumes. A collection is a named container addressed by an opaque
// handle; documents are serialized blobs at relative paths with sibling
// asset files, plus one small metadata record per collection.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound reports that a collection, document or asset does not exist.
// Providers must return it (wrapped or bare) distinctly from other failures.
var ErrNotFound = errors.New("storage: not found")

// Metadata is the collection's own small metadata record.
type Metadata struct {
	Version                int    `json:"version"`
	LastOpenedDocumentPath string `json:"last_opened_document_path"`
}

// Provider is the persistence contract. Implementations must support
// path-based addressing within a collection handle.
type Provider interface {
	// EnsureCollection creates the container if it does not exist.
	EnsureCollection(ctx context.Context, handle string) error

	ReadMetadata(ctx context.Context, handle string) (*Metadata, error)
	WriteMetadata(ctx context.Context, handle string, meta *Metadata) error

	ReadDocument(ctx context.Context, handle, path string) ([]byte, error)
	WriteDocument(ctx context.Context, handle, path string, content []byte) error
	ListDocuments(ctx context.Context, handle string) ([]string, error)

	ReadAsset(ctx context.Context, handle, name string) ([]byte, error)
	// WriteAsset stores bytes as a sibling asset file and returns the
	// relative stored reference.
	WriteAsset(ctx context.Context, handle, name string, data []byte) (string, error)
	ListAssets(ctx context.Context, handle string) ([]string, error)
}
