package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Collapse  key.Binding
	Expand    key.Binding
	Select    key.Binding
	Edit      key.Binding
	Save      key.Binding
	Cancel    key.Binding
	NewChild  key.Binding
	NewRoot   key.Binding
	Rename    key.Binding
	Move      key.Binding
	MoveRoot  key.Binding
	Libraries key.Binding
	Create    key.Binding
	Attach    key.Binding
	Refresh   key.Binding
	Help      key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Collapse: key.NewBinding(
		key.WithKeys("h", "left"),
		key.WithHelp("h", "collapse"),
	),
	Expand: key.NewBinding(
		key.WithKeys("l", "right"),
		key.WithHelp("l", "expand"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit"),
	),
	Save: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "save"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	NewChild: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new child"),
	),
	NewRoot: key.NewBinding(
		key.WithKeys("N"),
		key.WithHelp("N", "new root"),
	),
	Rename: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "rename"),
	),
	Move: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "move"),
	),
	MoveRoot: key.NewBinding(
		key.WithKeys("0"),
		key.WithHelp("0", "move to root"),
	),
	Libraries: key.NewBinding(
		key.WithKeys("L"),
		key.WithHelp("L", "libraries"),
	),
	Create: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "create library"),
	),
	Attach: key.NewBinding(
		key.WithKeys("ctrl+o"),
		key.WithHelp("ctrl+o", "attach image"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "refresh"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.Edit, k.NewChild, k.Rename, k.Move, k.Libraries, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Collapse, k.Expand, k.Select},
		{k.Edit, k.Save, k.Cancel, k.Attach},
		{k.NewChild, k.NewRoot, k.Rename, k.Move, k.MoveRoot},
		{k.Libraries, k.Create, k.Refresh, k.Help, k.Quit},
	}
}

// editHelp lists the bindings that work inside the editor.
type editHelp struct{ keyMap }

func (k editHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Save, k.Cancel, k.Attach}
}

func (k editHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
