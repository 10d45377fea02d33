package session

import (
	"github.com/hyperjump/quire/internal/doctree"
	"github.com/hyperjump/quire/internal/models"
)

// Phase is where the session stands.
type Phase int

const (
	NoLibrarySelected Phase = iota
	LibrarySelected
	DocumentViewing
	DocumentEditing
)

func (p Phase) String() string {
	switch p {
	case NoLibrarySelected:
		return "no-library"
	case LibrarySelected:
		return "library"
	case DocumentViewing:
		return "viewing"
	case DocumentEditing:
		return "editing"
	}
	return "unknown"
}

// EventKind says what changed.
type EventKind int

const (
	EventLibraries EventKind = iota
	EventTree
	EventSelection
	EventDocument
	EventSaved
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventLibraries:
		return "libraries"
	case EventTree:
		return "tree"
	case EventSelection:
		return "selection"
	case EventDocument:
		return "document"
	case EventSaved:
		return "saved"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is delivered to the WithNotify callback.
type Event struct {
	Kind       EventKind
	Library    string
	DocumentID int64
	Err        error
}

// Snapshot is a copy of the session state, safe to read without locking.
type Snapshot struct {
	Phase     Phase
	Libraries []models.Library
	Library   string
	// Tree is the forest in pre-order.
	Tree     []doctree.Entry
	Selected *models.Document // Content is the edit buffer
	Saved    string
	Dirty    bool
	ReadOnly bool
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Libraries: append([]models.Library(nil), s.libraries...),
		Library:   s.library,
		Tree:      s.forest.Flatten(),
		Saved:     s.saved,
		Dirty:     s.dirtyLocked(),
		ReadOnly:  s.readOnly,
	}
	switch {
	case s.library == "":
		snap.Phase = NoLibrarySelected
	case s.selected == nil:
		snap.Phase = LibrarySelected
	case s.editing:
		snap.Phase = DocumentEditing
	default:
		snap.Phase = DocumentViewing
	}
	if s.selected != nil {
		d := s.currentLocked()
		snap.Selected = &d
	}
	return snap
}

// Path returns the ancestors of id down to id itself.
func (s *Session) Path(id int64) []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.Path(id)
}
