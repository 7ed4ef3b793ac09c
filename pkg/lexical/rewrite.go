package lexical

import (
	"encoding/json"
	"fmt"
)

// ParseRoot decodes a Lexical JSON document into its node tree.
func ParseRoot(jsonContent string) (*LexicalRoot, error) {
	var root LexicalRoot
	if err := json.Unmarshal([]byte(jsonContent), &root); err != nil {
		return nil, fmt.Errorf("failed to parse lexical json: %w", err)
	}
	return &root, nil
}

// Serialize encodes the node tree back to its JSON string form.
func (r *LexicalRoot) Serialize() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to serialize lexical json: %w", err)
	}
	return string(data), nil
}

// ReplaceReference rewrites every node whose asset reference (image src or
// link url) equals old, in place. Returns the number of nodes rewritten.
func (r *LexicalRoot) ReplaceReference(old, new string) int {
	return replaceInNode(&r.Root, old, new)
}

func replaceInNode(n *Node, old, new string) int {
	count := 0
	if n.Src == old {
		n.Src = new
		count++
	}
	if n.URL == old {
		n.URL = new
		count++
	}
	for i := range n.Children {
		count += replaceInNode(&n.Children[i], old, new)
	}
	return count
}

// References collects every asset reference carried by the tree, in document
// order.
func (r *LexicalRoot) References() []string {
	var refs []string
	collectRefs(&r.Root, &refs)
	return refs
}

func collectRefs(n *Node, refs *[]string) {
	if n.Src != "" {
		*refs = append(*refs, n.Src)
	}
	if n.URL != "" {
		*refs = append(*refs, n.URL)
	}
	for i := range n.Children {
		collectRefs(&n.Children[i], refs)
	}
}

// RewriteReferences applies fn to every asset reference in the tree and
// stores the result. Returns the number of references changed.
func (r *LexicalRoot) RewriteReferences(fn func(string) string) int {
	return rewriteInNode(&r.Root, fn)
}

func rewriteInNode(n *Node, fn func(string) string) int {
	count := 0
	if n.Src != "" {
		if next := fn(n.Src); next != n.Src {
			n.Src = next
			count++
		}
	}
	if n.URL != "" {
		if next := fn(n.URL); next != n.URL {
			n.URL = next
			count++
		}
	}
	for i := range n.Children {
		count += rewriteInNode(&n.Children[i], fn)
	}
	return count
}

// AppendImage appends an image node (in its own paragraph) referencing src.
func (r *LexicalRoot) AppendImage(src, altText string) {
	r.Root.Children = append(r.Root.Children, Node{
		Type:    "paragraph",
		Version: 1,
		Children: []Node{{
			Type:    "image",
			Version: 1,
			Src:     src,
			AltText: altText,
		}},
	})
}
