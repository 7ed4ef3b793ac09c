// Package database implements the storage provider over Postgres via GORM.
// This is the synced driver: same path-addressed contract as the filesystem
// provider, with documents stored as JSONB and assets as bytea.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"note-editor-core/internal/storage"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type collectionRow struct {
	Handle                 string    `gorm:"type:varchar(255);primaryKey"`
	Version                int       `gorm:"not null;default:1"`
	LastOpenedDocumentPath string    `gorm:"type:varchar(1024)"`
	CreatedAt              time.Time `gorm:"autoCreateTime"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime"`
}

func (collectionRow) TableName() string {
	return "collections"
}

type documentRow struct {
	Handle    string         `gorm:"type:varchar(255);primaryKey"`
	Path      string         `gorm:"type:varchar(1024);primaryKey"`
	Content   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (documentRow) TableName() string {
	return "documents"
}

type assetRow struct {
	Handle    string    `gorm:"type:varchar(255);primaryKey"`
	Name      string    `gorm:"type:varchar(1024);primaryKey"`
	Data      []byte    `gorm:"type:bytea"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (assetRow) TableName() string {
	return "assets"
}

// Provider persists collections in Postgres.
type Provider struct {
	db *gorm.DB
}

// New creates the provider and migrates the schema.
func New(db *gorm.DB) (*Provider, error) {
	if err := db.AutoMigrate(&collectionRow{}, &documentRow{}, &assetRow{}); err != nil {
		return nil, fmt.Errorf("migrate storage schema: %w", err)
	}
	return &Provider{db: db}, nil
}

func (p *Provider) EnsureCollection(ctx context.Context, handle string) error {
	row := collectionRow{Handle: handle, Version: 1}
	err := p.db.WithContext(ctx).
		Where(collectionRow{Handle: handle}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("ensure collection %q: %w", handle, err)
	}
	return nil
}

func (p *Provider) ReadMetadata(ctx context.Context, handle string) (*storage.Metadata, error) {
	var row collectionRow
	err := p.db.WithContext(ctx).First(&row, "handle = ?", handle).Error
	if err != nil {
		return nil, mapNotFound(err, "metadata of %q", handle)
	}
	return &storage.Metadata{
		Version:                row.Version,
		LastOpenedDocumentPath: row.LastOpenedDocumentPath,
	}, nil
}

func (p *Provider) WriteMetadata(ctx context.Context, handle string, meta *storage.Metadata) error {
	res := p.db.WithContext(ctx).Model(&collectionRow{}).
		Where("handle = ?", handle).
		Updates(map[string]interface{}{
			"version":                   meta.Version,
			"last_opened_document_path": meta.LastOpenedDocumentPath,
		})
	if res.Error != nil {
		return fmt.Errorf("write metadata of %q: %w", handle, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("metadata of %q: %w", handle, storage.ErrNotFound)
	}
	return nil
}

func (p *Provider) ReadDocument(ctx context.Context, handle, path string) ([]byte, error) {
	var row documentRow
	err := p.db.WithContext(ctx).First(&row, "handle = ? AND path = ?", handle, path).Error
	if err != nil {
		return nil, mapNotFound(err, "document %q in %q", path, handle)
	}
	return []byte(row.Content), nil
}

func (p *Provider) WriteDocument(ctx context.Context, handle, path string, content []byte) error {
	row := documentRow{Handle: handle, Path: path, Content: datatypes.JSON(content)}
	err := p.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return fmt.Errorf("write document %q in %q: %w", path, handle, err)
	}
	return nil
}

func (p *Provider) ListDocuments(ctx context.Context, handle string) ([]string, error) {
	var paths []string
	err := p.db.WithContext(ctx).Model(&documentRow{}).
		Where("handle = ?", handle).
		Order("path").
		Pluck("path", &paths).Error
	if err != nil {
		return nil, fmt.Errorf("list documents of %q: %w", handle, err)
	}
	return paths, nil
}

func (p *Provider) ReadAsset(ctx context.Context, handle, name string) ([]byte, error) {
	name = strings.TrimPrefix(name, "assets/")
	var row assetRow
	err := p.db.WithContext(ctx).First(&row, "handle = ? AND name = ?", handle, name).Error
	if err != nil {
		return nil, mapNotFound(err, "asset %q in %q", name, handle)
	}
	return row.Data, nil
}

func (p *Provider) WriteAsset(ctx context.Context, handle, name string, data []byte) (string, error) {
	name = strings.TrimPrefix(name, "assets/")
	row := assetRow{Handle: handle, Name: name, Data: data}
	if err := p.db.WithContext(ctx).Save(&row).Error; err != nil {
		return "", fmt.Errorf("write asset %q in %q: %w", name, handle, err)
	}
	return "assets/" + name, nil
}

func (p *Provider) ListAssets(ctx context.Context, handle string) ([]string, error) {
	var names []string
	err := p.db.WithContext(ctx).Model(&assetRow{}).
		Where("handle = ?", handle).
		Order("name").
		Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list assets of %q: %w", handle, err)
	}
	for i, n := range names {
		names[i] = "assets/" + n
	}
	return names, nil
}

func mapNotFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, storage.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
