// Package session holds the pure state machine that tracks which
// collection/document pair is currently open. Transitions never perform I/O;
// loading documents and persisting metadata around a transition is the
// session service's job.
package session

import (
	"note-editor-core/internal/entity"
)

// Kind enumerates the mutually exclusive session states.
type Kind int

const (
	// KindNoDocument is the idle state: nothing open, nothing pending.
	KindNoDocument Kind = iota
	// KindAwaitingReauthorization means a previously used storage location
	// was found but access must be re-confirmed by a user action.
	KindAwaitingReauthorization
	// KindActive means a collection and one open document are loaded.
	KindActive
)

func (k Kind) String() string {
	switch k {
	case KindNoDocument:
		return "no_document"
	case KindAwaitingReauthorization:
		return "awaiting_reauthorization"
	case KindActive:
		return "active"
	default:
		return "unknown"
	}
}

// State is a tagged union: exactly the fields of the active Kind are set.
// States are replaced wholesale on every transition, never mutated in place.
type State struct {
	Kind Kind

	// AwaitingReauthorization only.
	Handle      string
	DisplayName string

	// Active only. Document always belongs to Collection; Transition
	// rejects events that would break that.
	Collection *entity.Collection
	Document   *entity.Document
}

// NoDocument returns the idle state.
func NoDocument() State {
	return State{Kind: KindNoDocument}
}

// EventKind enumerates the transition events.
type EventKind int

const (
	EventOpenCollection EventKind = iota
	EventReauthorizationNeeded
	EventReauthorized
	EventCancelReauthorization
	EventSwitchDocument
)

func (k EventKind) String() string {
	switch k {
	case EventOpenCollection:
		return "open_collection"
	case EventReauthorizationNeeded:
		return "reauthorization_needed"
	case EventReauthorized:
		return "reauthorized"
	case EventCancelReauthorization:
		return "cancel_reauthorization"
	case EventSwitchDocument:
		return "switch_document"
	default:
		return "unknown"
	}
}

// Event carries the payload for a transition.
type Event struct {
	Kind EventKind

	Handle      string
	DisplayName string

	Collection *entity.Collection
	Document   *entity.Document
}

// OpenCollection opens (or creates) a collection with an initial document.
func OpenCollection(collection *entity.Collection, document *entity.Document) Event {
	return Event{Kind: EventOpenCollection, Collection: collection, Document: document}
}

// ReauthorizationNeeded reports that startup found a prior collection but
// lacks live permission to read it.
func ReauthorizationNeeded(handle, displayName string) Event {
	return Event{Kind: EventReauthorizationNeeded, Handle: handle, DisplayName: displayName}
}

// Reauthorized reports that the user granted permission; the collection and
// its document are loaded by the caller before raising this event.
func Reauthorized(collection *entity.Collection, document *entity.Document) Event {
	return Event{Kind: EventReauthorized, Collection: collection, Document: document}
}

// CancelReauthorization reports that the user declined the permission prompt.
func CancelReauthorization() Event {
	return Event{Kind: EventCancelReauthorization}
}

// SwitchDocument opens a different document within the current collection.
func SwitchDocument(document *entity.Document) Event {
	return Event{Kind: EventSwitchDocument, Document: document}
}

// Transition applies event to state and returns the next state. The second
// return value is false when the event is not legal for the current state;
// the caller must then leave its state unchanged and treat the request as a
// no-op.
func Transition(state State, event Event) (State, bool) {
	switch state.Kind {
	case KindNoDocument:
		switch event.Kind {
		case EventOpenCollection:
			return activeState(event.Collection, event.Document)
		case EventReauthorizationNeeded:
			if event.Handle == "" {
				return State{}, false
			}
			return State{
				Kind:        KindAwaitingReauthorization,
				Handle:      event.Handle,
				DisplayName: event.DisplayName,
			}, true
		}

	case KindAwaitingReauthorization:
		switch event.Kind {
		case EventReauthorized, EventOpenCollection:
			return activeState(event.Collection, event.Document)
		case EventCancelReauthorization:
			return NoDocument(), true
		}

	case KindActive:
		switch event.Kind {
		case EventOpenCollection:
			return activeState(event.Collection, event.Document)
		case EventSwitchDocument:
			return activeState(state.Collection, event.Document)
		}
	}

	return State{}, false
}

func activeState(collection *entity.Collection, document *entity.Document) (State, bool) {
	if collection == nil || document == nil {
		return State{}, false
	}
	if document.CollectionId != collection.Id {
		// Cross-collection dangling reference.
		return State{}, false
	}
	return State{
		Kind:       KindActive,
		Collection: collection,
		Document:   document,
	}, true
}
