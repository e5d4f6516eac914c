package sheet

// EventKind names an emitted event.
type EventKind string

const (
	EventSelection    EventKind = "selection"
	EventCommit       EventKind = "commit"
	EventLoaded       EventKind = "loaded"
	EventLoadError    EventKind = "load_error"
	EventPersistError EventKind = "persist_error"
)

// maxPendingEvents caps the undrained queue; the oldest events are dropped.
const maxPendingEvents = 256

// Event is something the sheet emitted to its collaborators.
type Event struct {
	Kind      EventKind `json:"kind"`
	FeatureID string    `json:"feature_id,omitempty"`
	Features  int       `json:"features,omitempty"`
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (s *Sheet) addEventLocked(e Event) {
	s.events = append(s.events, e)
	if over := len(s.events) - maxPendingEvents; over > 0 {
		s.events = append(s.events[:0:0], s.events[over:]...)
	}
}
