package annotate

import (
	"fmt"
	"testing"

	"github.com/ironsheep/plansheet-mcp/internal/overlay"
)

func collectionOf(n int) overlay.FeatureCollection {
	fc := overlay.FeatureCollection{Features: []overlay.Feature{}}
	for i := 0; i < n; i++ {
		fc.Features = append(fc.Features, overlay.Feature{ID: fmt.Sprintf("f_%d", i), Included: true})
	}
	return fc
}

func TestHistory_DropsOldest(t *testing.T) {
	h := NewHistory(3)
	for n := 0; n < 5; n++ {
		h.Record(collectionOf(n))
	}
	if h.UndoDepth() != 3 {
		t.Fatalf("undo depth: got %d, want 3", h.UndoDepth())
	}

	// Snapshots 0 and 1 fell off the bottom; the newest three remain.
	current := collectionOf(5)
	for _, want := range []int{4, 3, 2} {
		prev, ok := h.Undo(current)
		if !ok {
			t.Fatalf("undo to %d features failed", want)
		}
		if prev.Len() != want {
			t.Errorf("undo: got %d features, want %d", prev.Len(), want)
		}
		current = prev
	}
	if _, ok := h.Undo(current); ok {
		t.Error("undo past the limit should report false")
	}
	if h.RedoDepth() != 3 {
		t.Errorf("redo depth: got %d, want 3", h.RedoDepth())
	}
}

func TestHistory_DefaultLimit(t *testing.T) {
	for _, limit := range []int{0, -1} {
		h := NewHistory(limit)
		for i := 0; i < DefaultHistoryLimit+10; i++ {
			h.Record(collectionOf(1))
		}
		if h.UndoDepth() != DefaultHistoryLimit {
			t.Errorf("NewHistory(%d): undo depth %d, want %d", limit, h.UndoDepth(), DefaultHistoryLimit)
		}
	}
}

func TestHistory_RecordClearsRedo(t *testing.T) {
	h := NewHistory(0)
	h.Record(collectionOf(0))
	if _, ok := h.Undo(collectionOf(1)); !ok {
		t.Fatal("undo failed")
	}
	if h.RedoDepth() != 1 {
		t.Fatalf("redo depth: got %d, want 1", h.RedoDepth())
	}
	h.Record(collectionOf(0))
	if h.RedoDepth() != 0 {
		t.Errorf("redo depth after record: got %d, want 0", h.RedoDepth())
	}
}
