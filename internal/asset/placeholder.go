// Package asset implements the asynchronous asset resolution pipeline:
// the placeholder lifecycle for content whose bytes are not yet available,
// the per-session cache that owns decoded resources, and the resolver that
// drives a single fetch attempt to its terminal outcome.
package asset

import (
	"strings"

	"github.com/google/uuid"
)

const (
	loadingPrefix = "placeholder:loading-"
	failedMarker  = "placeholder:failed"
)

// PlaceholderKind enumerates the lifecycle states of one pending asset
// reference.
type PlaceholderKind int

const (
	// PlaceholderLoading: fetch in progress.
	PlaceholderLoading PlaceholderKind = iota
	// PlaceholderResolved: terminal; the placeholder is replaced by a real,
	// storable asset reference.
	PlaceholderResolved
	// PlaceholderFailed: terminal; the fetch did not succeed.
	PlaceholderFailed
)

func (k PlaceholderKind) String() string {
	switch k {
	case PlaceholderLoading:
		return "loading"
	case PlaceholderResolved:
		return "resolved"
	case PlaceholderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Placeholder is the state of one pending asset insertion. Id is an opaque
// correlation token, set only while loading; FinalRef only when resolved.
type Placeholder struct {
	Kind     PlaceholderKind
	Id       string
	FinalRef string
}

// NewLoadingPlaceholder mints a Loading placeholder with a fresh correlation
// token.
func NewLoadingPlaceholder() Placeholder {
	return Placeholder{Kind: PlaceholderLoading, Id: uuid.NewString()}
}

// OutcomeKind enumerates fetch outcomes.
type OutcomeKind int

const (
	OutcomeFetchSucceeded OutcomeKind = iota
	OutcomeFetchFailed
)

// Outcome is the event fed into TransitionPlaceholder.
type Outcome struct {
	Kind      OutcomeKind
	Reference string
}

// FetchSucceeded carries the stored reference the placeholder resolves to.
func FetchSucceeded(reference string) Outcome {
	return Outcome{Kind: OutcomeFetchSucceeded, Reference: reference}
}

// FetchFailed marks the single fetch attempt as failed.
func FetchFailed() Outcome {
	return Outcome{Kind: OutcomeFetchFailed}
}

// TransitionPlaceholder applies an outcome. Only Loading accepts events;
// resolution is write-once, so any event against a terminal state returns
// false and the caller keeps its state.
func TransitionPlaceholder(p Placeholder, o Outcome) (Placeholder, bool) {
	if p.Kind != PlaceholderLoading {
		return Placeholder{}, false
	}
	switch o.Kind {
	case OutcomeFetchSucceeded:
		if o.Reference == "" {
			return Placeholder{}, false
		}
		return Placeholder{Kind: PlaceholderResolved, FinalRef: o.Reference}, true
	case OutcomeFetchFailed:
		return Placeholder{Kind: PlaceholderFailed}, true
	default:
		return Placeholder{}, false
	}
}

// Encode renders the placeholder for embedding inside document content.
// Loading and Failed round-trip through DecodePlaceholder; a Resolved
// placeholder encodes to its plain reference, which deliberately no longer
// decodes as a placeholder.
func (p Placeholder) Encode() string {
	switch p.Kind {
	case PlaceholderLoading:
		return loadingPrefix + p.Id
	case PlaceholderFailed:
		return failedMarker
	default:
		return p.FinalRef
	}
}

// DecodePlaceholder parses a reference string found in document content.
// A string matching neither placeholder pattern yields false: it is an
// ordinary, already-resolved reference (local path, embedded data, URL),
// not an error.
func DecodePlaceholder(s string) (Placeholder, bool) {
	if s == failedMarker {
		return Placeholder{Kind: PlaceholderFailed}, true
	}
	if strings.HasPrefix(s, loadingPrefix) {
		return Placeholder{Kind: PlaceholderLoading, Id: s[len(loadingPrefix):]}, true
	}
	return Placeholder{}, false
}

// IsLoadingRef reports whether a reference string encodes an in-flight
// placeholder. Such references must never be durably written.
func IsLoadingRef(s string) bool {
	return strings.HasPrefix(s, loadingPrefix)
}

// FailedMarker is the terminal encoding written into the document when a
// fetch fails.
func FailedMarker() string {
	return failedMarker
}
