package entity

import (
	"time"

	"github.com/google/uuid"
)

// Collection is a named container of documents ("notebook" informally).
// Handle is the storage address of the container (directory name for the
// filesystem provider, row key for the database provider).
type Collection struct {
	Id        uuid.UUID
	Name      string
	Handle    string
	Meta      CollectionMeta
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// CollectionMeta is the small metadata record persisted alongside the
// collection's documents.
type CollectionMeta struct {
	Version                int    `json:"version"`
	LastOpenedDocumentPath string `json:"last_opened_document_path"`
}
