// Package document holds the in-memory open document and implements the
// narrow accessor the edit-session core needs: serialization, placeholder
// reference rewriting at the reference's current position, and unsaved-change
// tracking. The in-memory document is the source of truth until the next
// successful save.
package document

import (
	"strings"
	"sync"

	"note-editor-core/internal/asset"
	"note-editor-core/pkg/lexical"
)

// Accessor is the interface the session core consumes.
type Accessor interface {
	// Serialize returns the live in-memory form, placeholders included.
	Serialize() (string, error)
	// SerializeForStorage returns the durable form. An in-flight loading
	// placeholder must never be durably written; it is downgraded to the
	// terminal failure marker. If the fetch later succeeds, the rewrite
	// schedules a fresh save and the stored content converges.
	SerializeForStorage() (string, error)
	ReplaceReference(old, new string) bool
	InsertAssetReference(ref, altText string)
	Dirty() bool
	MarkSaved()
}

// Document wraps the parsed Lexical tree of one open note. Content that is
// not Lexical JSON is kept verbatim and handled with plain string rewrites.
//
// gen counts content mutations, serializedGen the generation captured by the
// last storage serialization, savedGen the generation confirmed written.
// Dirtiness compares gen against savedGen, so an edit landing between the
// serialization and the write acknowledgment keeps the document dirty.
type Document struct {
	mu            sync.Mutex
	root          *lexical.LexicalRoot
	raw           string
	gen           uint64
	serializedGen uint64
	savedGen      uint64
}

// Load parses content into a document. Empty content yields an empty tree.
func Load(content string) *Document {
	d := &Document{}
	d.replaceContentLocked(content)
	return d
}

// ApplyEdit replaces the document content wholesale (the editor surface
// sends full serialized states) and marks it dirty.
func (d *Document) ApplyEdit(content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replaceContentLocked(content)
	d.gen++
}

func (d *Document) replaceContentLocked(content string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		d.root = &lexical.LexicalRoot{Root: lexical.Node{Type: "root", Version: 1}}
		d.raw = ""
		return
	}
	if strings.HasPrefix(trimmed, `{"root":`) {
		if root, err := lexical.ParseRoot(trimmed); err == nil {
			d.root = root
			d.raw = ""
			return
		}
	}
	d.root = nil
	d.raw = content
}

func (d *Document) Serialize() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root != nil {
		return d.root.Serialize()
	}
	return d.raw, nil
}

func (d *Document) SerializeForStorage() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serializedGen = d.gen
	if d.root != nil {
		clone, err := cloneRoot(d.root)
		if err != nil {
			return "", err
		}
		clone.RewriteReferences(func(ref string) string {
			if asset.IsLoadingRef(ref) {
				return asset.FailedMarker()
			}
			return ref
		})
		return clone.Serialize()
	}
	return downgradeLoadingRefs(d.raw), nil
}

func (d *Document) ReplaceReference(old, new string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root != nil {
		if d.root.ReplaceReference(old, new) == 0 {
			return false
		}
		d.gen++
		return true
	}
	if !strings.Contains(d.raw, old) {
		return false
	}
	d.raw = strings.ReplaceAll(d.raw, old, new)
	d.gen++
	return true
}

func (d *Document) InsertAssetReference(ref, altText string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root != nil {
		d.root.AppendImage(ref, altText)
	} else {
		d.raw += "\n![" + altText + "](" + ref + ")"
	}
	d.gen++
}

// Dirty reports whether the document has unsaved changes.
func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen != d.savedGen
}

// MarkSaved is called by the save operation after a successful write. Only
// the serialized snapshot is confirmed; changes made since it was taken keep
// the document dirty.
func (d *Document) MarkSaved() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.savedGen = d.serializedGen
}

// PendingPlaceholders counts loading references still present in content.
func (d *Document) PendingPlaceholders() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	if d.root != nil {
		for _, ref := range d.root.References() {
			if asset.IsLoadingRef(ref) {
				count++
			}
		}
		return count
	}
	return strings.Count(d.raw, "placeholder:loading-")
}

// Title derives a display title from the content's first non-empty line.
func (d *Document) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var text string
	if d.root != nil {
		serialized, err := d.root.Serialize()
		if err != nil {
			return ""
		}
		text = lexical.ParseContent(serialized)
	} else {
		text = d.raw
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "#*-> "))
		if line != "" {
			if len(line) > 80 {
				line = line[:80]
			}
			return line
		}
	}
	return ""
}

func cloneRoot(root *lexical.LexicalRoot) (*lexical.LexicalRoot, error) {
	serialized, err := root.Serialize()
	if err != nil {
		return nil, err
	}
	return lexical.ParseRoot(serialized)
}

func downgradeLoadingRefs(content string) string {
	const prefix = "placeholder:loading-"
	for {
		start := strings.Index(content, prefix)
		if start < 0 {
			return content
		}
		end := start + len(prefix)
		for end < len(content) && isRefByte(content[end]) {
			end++
		}
		content = content[:start] + asset.FailedMarker() + content[end:]
	}
}

func isRefByte(b byte) bool {
	return b == '-' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f')
}
