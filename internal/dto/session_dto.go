package dto

import (
	"time"

	"github.com/google/uuid"
)

type OpenCollectionRequest struct {
	Handle       string `json:"handle" validate:"required"`
	Name         string `json:"name"`
	DocumentPath string `json:"document_path"`
}

type SwitchDocumentRequest struct {
	Path string `json:"path" validate:"required"`
}

type EditRequest struct {
	Content string `json:"content" validate:"required"`
}

type InsertAssetRequest struct {
	Source string `json:"source" validate:"required"`
	Name   string `json:"name"`
}

type InsertAssetResponse struct {
	Placeholder string `json:"placeholder"`
}

// SessionSnapshot is the client-facing view of one edit session.
type SessionSnapshot struct {
	State            string     `json:"state"`
	CollectionHandle string     `json:"collection_handle,omitempty"`
	CollectionName   string     `json:"collection_name,omitempty"`
	DocumentPath     string     `json:"document_path,omitempty"`
	DocumentTitle    string     `json:"document_title,omitempty"`
	Content          string     `json:"content,omitempty"`
	Dirty            bool       `json:"dirty"`
	AutosaveState    string     `json:"autosave_state,omitempty"`
	PendingAssets    int        `json:"pending_assets"`
	CachedAssets     int        `json:"cached_assets"`
	LastSavedAt      *time.Time `json:"last_saved_at,omitempty"`
}

type DocumentListResponse struct {
	Paths []string `json:"paths"`
}

type NotificationRecord struct {
	Id         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt string                 `json:"occurred_at"`
	ReceivedAt time.Time              `json:"received_at"`
}
