package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/quire/internal/session"
)

// View renders the screen.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteByte('\n')

	left := m.treeView()
	if m.mode == modeLibraries {
		left = m.libraryView()
	}
	treeStyle, docStyle := focusedPane, paneStyle
	if m.mode == modeEdit {
		treeStyle, docStyle = paneStyle, focusedPane
	}
	height := m.viewer.Height + 2
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		treeStyle.Width(m.treeWidth()).Height(height).Render(left),
		docStyle.Width(m.viewer.Width+2).Height(height).Render(m.documentView()),
	))
	b.WriteByte('\n')
	b.WriteString(m.statusLine())
	b.WriteByte('\n')
	if m.mode == modeEdit {
		b.WriteString(m.help.View(editHelp{keys}))
	} else {
		b.WriteString(m.help.View(keys))
	}
	return b.String()
}

func (m *Model) header() string {
	name := "no library"
	for _, lib := range m.snap.Libraries {
		if lib.ID() == m.snap.Library {
			name = lib.Name
		}
	}
	if m.snap.Library != "" && name == "no library" {
		name = m.snap.Library
	}
	out := headerStyle.Render("quire · " + name)
	if m.snap.ReadOnly {
		out += " " + badgeStyle.Render("read-only")
	}
	if m.snap.Dirty {
		out += " " + dimStyle.Render("● unsaved")
	}
	return out
}

func (m *Model) treeView() string {
	if len(m.rows) == 0 {
		if m.snap.Phase == session.NoLibrarySelected {
			return dimStyle.Render("No library. Press L to create one.")
		}
		return dimStyle.Render("Empty library. Press N to add a document.")
	}
	var selected int64 = -1
	if m.snap.Selected != nil {
		selected = m.snap.Selected.ID
	}
	lines := make([]string, 0, len(m.rows))
	for i, e := range m.rows {
		marker := "  "
		if e.HasChildren {
			marker = "▾ "
			if m.collapsed[e.Doc.ID] {
				marker = "▸ "
			}
		}
		line := strings.Repeat("  ", e.Depth) + marker + e.Doc.Title
		switch {
		case m.moving != nil && *m.moving == e.Doc.ID:
			line = movingStyle.Render(line)
		case e.Doc.ID == selected:
			line = selectedStyle.Render(line)
		}
		if i == m.cursor {
			line = cursorStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) libraryView() string {
	if len(m.snap.Libraries) == 0 {
		return dimStyle.Render("No libraries. Press c to create one.")
	}
	lines := []string{titleStyle.Render("Libraries")}
	for i, lib := range m.snap.Libraries {
		line := lib.Name
		if lib.ID() == m.snap.Library {
			line = selectedStyle.Render(line)
		}
		if i == m.libCursor {
			line = cursorStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) documentView() string {
	sel := m.snap.Selected
	if sel == nil {
		return m.viewer.View()
	}
	title := titleStyle.Render(sel.Title)
	if m.mode == modeEdit || (m.mode == modeInput && m.purpose == inputUpload) {
		return title + "\n" + m.editor.View()
	}
	return title + "\n" + m.viewer.View()
}

func (m *Model) statusLine() string {
	switch {
	case m.prompt != nil:
		return promptStyle.Render(m.prompt.question + " (y/n)")
	case m.mode == modeInput:
		return statusStyle.Render(m.input.View())
	case m.err != nil:
		return errorStyle.Render(fmt.Sprintf("error: %v", m.err))
	}
	return statusStyle.Render(m.status)
}
