package session

import (
	"testing"
	"time"

	"note-editor-core/internal/entity"

	"github.com/google/uuid"
)

func testCollection() *entity.Collection {
	return &entity.Collection{
		Id:        uuid.New(),
		Name:      "journal",
		Handle:    "journal",
		Meta:      entity.CollectionMeta{Version: 1},
		CreatedAt: time.Now(),
	}
}

func testDocument(c *entity.Collection) *entity.Document {
	return &entity.Document{
		Id:           uuid.New(),
		CollectionId: c.Id,
		Path:         "notes/today.json",
		Title:        "Today",
		CreatedAt:    time.Now(),
	}
}

func TestTransitionTable(t *testing.T) {
	col := testCollection()
	doc := testDocument(col)
	other := testCollection()
	otherDoc := testDocument(other)

	awaiting := State{Kind: KindAwaitingReauthorization, Handle: "journal", DisplayName: "Journal"}
	active, ok := Transition(NoDocument(), OpenCollection(col, doc))
	if !ok {
		t.Fatalf("open-collection from NoDocument must be legal")
	}

	tests := []struct {
		name     string
		from     State
		event    Event
		wantOk   bool
		wantKind Kind
	}{
		{"no-document open-collection", NoDocument(), OpenCollection(col, doc), true, KindActive},
		{"no-document reauthorization-needed", NoDocument(), ReauthorizationNeeded("journal", "Journal"), true, KindAwaitingReauthorization},
		{"no-document reauthorized invalid", NoDocument(), Reauthorized(col, doc), false, 0},
		{"no-document cancel invalid", NoDocument(), CancelReauthorization(), false, 0},
		{"no-document switch invalid", NoDocument(), SwitchDocument(doc), false, 0},

		{"awaiting reauthorized", awaiting, Reauthorized(col, doc), true, KindActive},
		{"awaiting open-collection", awaiting, OpenCollection(other, otherDoc), true, KindActive},
		{"awaiting cancel", awaiting, CancelReauthorization(), true, KindNoDocument},
		{"awaiting switch invalid", awaiting, SwitchDocument(doc), false, 0},
		{"awaiting reauthorization-needed invalid", awaiting, ReauthorizationNeeded("x", "x"), false, 0},

		{"active open-collection", active, OpenCollection(other, otherDoc), true, KindActive},
		{"active switch-document", active, SwitchDocument(testDocument(col)), true, KindActive},
		{"active reauthorized invalid", active, Reauthorized(col, doc), false, 0},
		{"active cancel invalid", active, CancelReauthorization(), false, 0},
		{"active reauthorization-needed invalid", active, ReauthorizationNeeded("x", "x"), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := Transition(tt.from, tt.event)
			if ok != tt.wantOk {
				t.Fatalf("Transition ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && next.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", next.Kind, tt.wantKind)
			}
		})
	}
}

func TestTransitionRejectsCrossCollectionDocument(t *testing.T) {
	col := testCollection()
	stranger := testCollection()
	strayDoc := testDocument(stranger)

	if _, ok := Transition(NoDocument(), OpenCollection(col, strayDoc)); ok {
		t.Error("document from another collection must not produce an Active state")
	}

	active, _ := Transition(NoDocument(), OpenCollection(col, testDocument(col)))
	if _, ok := Transition(active, SwitchDocument(strayDoc)); ok {
		t.Error("switch-document across collections must be invalid")
	}
}

func TestTransitionLeavesInputUntouched(t *testing.T) {
	col := testCollection()
	doc := testDocument(col)
	active, _ := Transition(NoDocument(), OpenCollection(col, doc))

	// Invalid event: caller keeps the old state, which must be intact.
	before := active
	if _, ok := Transition(active, CancelReauthorization()); ok {
		t.Fatal("cancel-reauthorization from Active must be invalid")
	}
	if active != before {
		t.Error("invalid transition must not mutate the input state")
	}
}

func TestAwaitingReauthorizationRequiresHandle(t *testing.T) {
	if _, ok := Transition(NoDocument(), ReauthorizationNeeded("", "no handle")); ok {
		t.Error("reauthorization-needed without a storage handle must be invalid")
	}
}
