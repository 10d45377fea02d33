package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hyperjump/quire/internal/session"
)

// Run starts the program in the alternate screen and blocks until it exits.
func Run(ctx context.Context, sess *session.Session, bridge *Bridge, opts ...Option) error {
	m := New(ctx, sess, bridge, opts...)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
