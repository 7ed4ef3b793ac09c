package entity

import (
	"time"

	"github.com/google/uuid"
)

// Document is a single editable unit within a collection ("note" informally).
// Path addresses the serialized content blob inside the collection.
type Document struct {
	Id           uuid.UUID
	CollectionId uuid.UUID
	Path         string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}
