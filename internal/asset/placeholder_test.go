package asset

import (
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ph   Placeholder
	}{
		{"loading", Placeholder{Kind: PlaceholderLoading, Id: "abc"}},
		{"loading uuid", NewLoadingPlaceholder()},
		{"failed", Placeholder{Kind: PlaceholderFailed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, ok := DecodePlaceholder(tt.ph.Encode())
			if !ok {
				t.Fatalf("DecodePlaceholder(%q) = not a placeholder", tt.ph.Encode())
			}
			if decoded != tt.ph {
				t.Errorf("round trip = %+v, want %+v", decoded, tt.ph)
			}
		})
	}
}

func TestResolvedDoesNotRoundTrip(t *testing.T) {
	// Scenario: Loading{"abc"} + fetch-succeeded("notes/img1.png").
	ph := Placeholder{Kind: PlaceholderLoading, Id: "abc"}
	resolved, ok := TransitionPlaceholder(ph, FetchSucceeded("notes/img1.png"))
	if !ok {
		t.Fatal("fetch-succeeded on Loading must be legal")
	}
	if resolved.Kind != PlaceholderResolved || resolved.FinalRef != "notes/img1.png" {
		t.Fatalf("resolved = %+v", resolved)
	}

	encoded := resolved.Encode()
	if encoded != "notes/img1.png" {
		t.Errorf("Encode() = %q, want plain reference", encoded)
	}
	if _, ok := DecodePlaceholder(encoded); ok {
		t.Error("a resolved encoding must be indistinguishable from a plain reference")
	}
}

func TestDecodeOrdinaryReferences(t *testing.T) {
	for _, ref := range []string{
		"notes/img1.png",
		"https://example.com/pic.jpg",
		"data:image/png;base64,iVBOR",
		"",
		"placeholder:", // neither pattern
	} {
		if _, ok := DecodePlaceholder(ref); ok {
			t.Errorf("DecodePlaceholder(%q) = placeholder, want not-a-placeholder", ref)
		}
	}
}

func TestTerminalStatesRejectAllEvents(t *testing.T) {
	terminals := []Placeholder{
		{Kind: PlaceholderResolved, FinalRef: "notes/a.png"},
		{Kind: PlaceholderFailed},
	}
	outcomes := []Outcome{FetchSucceeded("notes/b.png"), FetchFailed()}

	for _, ph := range terminals {
		for _, o := range outcomes {
			if _, ok := TransitionPlaceholder(ph, o); ok {
				t.Errorf("transition on terminal %v with %v must be invalid", ph.Kind, o.Kind)
			}
		}
	}
}

func TestLoadingTransitions(t *testing.T) {
	ph := NewLoadingPlaceholder()

	failed, ok := TransitionPlaceholder(ph, FetchFailed())
	if !ok || failed.Kind != PlaceholderFailed {
		t.Errorf("fetch-failed on Loading = %+v, %v", failed, ok)
	}

	if _, ok := TransitionPlaceholder(ph, FetchSucceeded("")); ok {
		t.Error("fetch-succeeded without a reference must be invalid")
	}
}

func TestIsLoadingRef(t *testing.T) {
	ph := NewLoadingPlaceholder()
	if !IsLoadingRef(ph.Encode()) {
		t.Error("loading encoding must be recognized")
	}
	if IsLoadingRef(FailedMarker()) {
		t.Error("failed marker is terminal and persistable")
	}
	if IsLoadingRef("notes/img1.png") {
		t.Error("plain reference is not a loading ref")
	}
}
