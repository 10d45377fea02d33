package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/internal/session"
)

// eventMsg carries a session event into the program.
type eventMsg session.Event

// confirmMsg asks the user whether unsaved edits to doc may be discarded.
type confirmMsg struct {
	doc   models.Document
	reply chan<- bool
}

// Bridge connects a session to the program: it receives session events and
// answers the session's discard questions by prompting in the status line.
// Pass it to session.WithConfirmer and its Notify to session.WithNotify.
type Bridge struct {
	events   chan session.Event
	requests chan confirmMsg
}

// NewBridge returns an unconnected bridge.
func NewBridge() *Bridge {
	return &Bridge{
		events:   make(chan session.Event, 64),
		requests: make(chan confirmMsg),
	}
}

// Notify queues ev for the program. Events are dropped while the queue is full.
func (b *Bridge) Notify(ev session.Event) {
	select {
	case b.events <- ev:
	default:
	}
}

// ConfirmDiscard blocks until the user answers the prompt or ctx ends.
func (b *Bridge) ConfirmDiscard(ctx context.Context, doc models.Document) bool {
	reply := make(chan bool, 1)
	select {
	case b.requests <- confirmMsg{doc: doc, reply: reply}:
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// listen waits for the next event or question.
func (b *Bridge) listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-b.events:
			return eventMsg(ev)
		case req := <-b.requests:
			return req
		case <-ctx.Done():
			return nil
		}
	}
}
