package integration

import (
	"context"
	"log"
	"os"
	"testing"

	dbstorage "note-editor-core/internal/storage/database"
	"note-editor-core/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseStorageProvider(t *testing.T) {
	// Load .env from root
	err := godotenv.Load("../../.env")
	if err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}

	// Basic Ping
	sqlDB, _ := gormDB.DB()
	require.NoError(t, sqlDB.Ping())

	provider, err := dbstorage.New(gormDB)
	require.NoError(t, err)

	ctx := context.Background()
	// Unique handle per run so repeated runs don't collide
	handle := "it-" + uuid.NewString()

	require.NoError(t, provider.EnsureCollection(ctx, handle))

	t.Run("Document round trip", func(t *testing.T) {
		content := []byte(`{"root":{"type":"root","version":1,"children":[]}}`)
		require.NoError(t, provider.WriteDocument(ctx, handle, "notes/day-one.json", content))

		got, err := provider.ReadDocument(ctx, handle, "notes/day-one.json")
		require.NoError(t, err)
		assert.Equal(t, content, got)

		paths, err := provider.ListDocuments(ctx, handle)
		require.NoError(t, err)
		assert.Contains(t, paths, "notes/day-one.json")
	})

	t.Run("Metadata round trip", func(t *testing.T) {
		meta, err := provider.ReadMetadata(ctx, handle)
		require.NoError(t, err)

		meta.LastOpenedDocumentPath = "notes/day-one.json"
		require.NoError(t, provider.WriteMetadata(ctx, handle, meta))

		got, err := provider.ReadMetadata(ctx, handle)
		require.NoError(t, err)
		assert.Equal(t, "notes/day-one.json", got.LastOpenedDocumentPath)
	})

	t.Run("Asset round trip", func(t *testing.T) {
		ref, err := provider.WriteAsset(ctx, handle, "photo.png", []byte{0x89, 0x50, 0x4e, 0x47})
		require.NoError(t, err)
		assert.Equal(t, "assets/photo.png", ref)

		got, err := provider.ReadAsset(ctx, handle, ref)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, got)

		names, err := provider.ListAssets(ctx, handle)
		require.NoError(t, err)
		assert.Contains(t, names, ref)
	})
}
