package annotate

import "github.com/ironsheep/plansheet-mcp/internal/overlay"

// DefaultHistoryLimit bounds each stack. The oldest snapshot is dropped once
// the undo stack grows past it.
const DefaultHistoryLimit = 200

// History holds whole-collection snapshots for undo and redo.
type History struct {
	undo  []overlay.FeatureCollection
	redo  []overlay.FeatureCollection
	limit int
}

// NewHistory creates empty stacks holding at most limit snapshots each.
// A limit <= 0 uses DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		undo:  make([]overlay.FeatureCollection, 0, 16),
		redo:  make([]overlay.FeatureCollection, 0, 16),
		limit: limit,
	}
}

// Record pushes a snapshot of before onto the undo stack and clears redo.
// Every committed mutation goes through here.
func (h *History) Record(before overlay.FeatureCollection) {
	h.undo = pushBounded(h.undo, before.Clone(), h.limit)
	h.redo = h.redo[:0]
}

// Undo pops the undo stack, pushing current onto redo. ok is false when
// there is nothing to undo.
func (h *History) Undo(current overlay.FeatureCollection) (overlay.FeatureCollection, bool) {
	if len(h.undo) == 0 {
		return overlay.FeatureCollection{}, false
	}
	last := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = pushBounded(h.redo, current.Clone(), h.limit)
	return last.Clone(), true
}

// Redo pops the redo stack, pushing current onto undo.
func (h *History) Redo(current overlay.FeatureCollection) (overlay.FeatureCollection, bool) {
	if len(h.redo) == 0 {
		return overlay.FeatureCollection{}, false
	}
	last := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = pushBounded(h.undo, current.Clone(), h.limit)
	return last.Clone(), true
}

// Reset empties both stacks.
func (h *History) Reset() {
	h.undo = h.undo[:0]
	h.redo = h.redo[:0]
}

func (h *History) UndoDepth() int { return len(h.undo) }
func (h *History) RedoDepth() int { return len(h.redo) }

func pushBounded(stack []overlay.FeatureCollection, fc overlay.FeatureCollection, limit int) []overlay.FeatureCollection {
	stack = append(stack, fc)
	if len(stack) > limit {
		stack = stack[1:]
	}
	return stack
}
