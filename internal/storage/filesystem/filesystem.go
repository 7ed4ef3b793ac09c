// Package filesystem implements the storage provider over a local directory
// tree. This is the offline driver: a collection is a directory under the
// configured root, documents are JSON blobs at relative paths, assets live
// under assets/, and collection.json holds the metadata record.
package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"note-editor-core/internal/storage"
)

const (
	metadataFile = "collection.json"
	assetDir     = "assets"
)

// Provider stores collections under a single root directory.
type Provider struct {
	root string
}

// New creates the provider, creating root if needed.
func New(root string) (*Provider, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Provider{root: root}, nil
}

func (p *Provider) EnsureCollection(ctx context.Context, handle string) error {
	dir, err := p.collectionDir(handle)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, assetDir), 0o755); err != nil {
		return fmt.Errorf("create collection %q: %w", handle, err)
	}
	return nil
}

func (p *Provider) ReadMetadata(ctx context.Context, handle string) (*storage.Metadata, error) {
	dir, err := p.collectionDir(handle)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, mapNotFound(err, "metadata of %q", handle)
	}
	var meta storage.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata of %q: %w", handle, err)
	}
	return &meta, nil
}

func (p *Provider) WriteMetadata(ctx context.Context, handle string, meta *storage.Metadata) error {
	dir, err := p.collectionDir(handle)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata of %q: %w", handle, err)
	}
	return atomicWrite(filepath.Join(dir, metadataFile), data)
}

func (p *Provider) ReadDocument(ctx context.Context, handle, path string) ([]byte, error) {
	full, err := p.documentPath(handle, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, mapNotFound(err, "document %q in %q", path, handle)
	}
	return data, nil
}

func (p *Provider) WriteDocument(ctx context.Context, handle, path string, content []byte) error {
	full, err := p.documentPath(handle, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	return atomicWrite(full, content)
}

func (p *Provider) ListDocuments(ctx context.Context, handle string) ([]string, error) {
	dir, err := p.collectionDir(handle)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, mapNotFound(err, "collection %q", handle)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == assetDir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == metadataFile {
			return nil
		}
		// A concurrent atomicWrite's temp sibling is not a document yet.
		if strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents of %q: %w", handle, err)
	}
	return paths, nil
}

func (p *Provider) ReadAsset(ctx context.Context, handle, name string) ([]byte, error) {
	full, err := p.assetPath(handle, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, mapNotFound(err, "asset %q in %q", name, handle)
	}
	return data, nil
}

func (p *Provider) WriteAsset(ctx context.Context, handle, name string, data []byte) (string, error) {
	name = strings.TrimPrefix(name, assetDir+"/")
	full, err := p.assetPath(handle, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}
	if err := atomicWrite(full, data); err != nil {
		return "", err
	}
	return assetDir + "/" + filepath.ToSlash(name), nil
}

func (p *Provider) ListAssets(ctx context.Context, handle string) ([]string, error) {
	dir, err := p.collectionDir(handle)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, assetDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list assets of %q: %w", handle, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, assetDir+"/"+e.Name())
	}
	return names, nil
}

func (p *Provider) collectionDir(handle string) (string, error) {
	if err := checkRelative(handle); err != nil {
		return "", err
	}
	return filepath.Join(p.root, filepath.FromSlash(handle)), nil
}

func (p *Provider) documentPath(handle, path string) (string, error) {
	dir, err := p.collectionDir(handle)
	if err != nil {
		return "", err
	}
	if err := checkRelative(path); err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(path)), nil
}

// assetPath accepts either a bare name or the assets/ reference WriteAsset
// returns.
func (p *Provider) assetPath(handle, name string) (string, error) {
	dir, err := p.collectionDir(handle)
	if err != nil {
		return "", err
	}
	name = strings.TrimPrefix(name, assetDir+"/")
	if err := checkRelative(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, assetDir, filepath.FromSlash(name)), nil
}

// checkRelative rejects handles/paths that would escape the root.
func checkRelative(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return fmt.Errorf("absolute path %q not allowed", p)
	}
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return fmt.Errorf("path %q escapes collection", p)
		}
	}
	return nil
}

// atomicWrite writes via temp file + rename so a crashed save never leaves a
// half-written blob behind.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func mapNotFound(err error, format string, args ...interface{}) error {
	if os.IsNotExist(err) {
		return fmt.Errorf(format+": %w", append(args, storage.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
