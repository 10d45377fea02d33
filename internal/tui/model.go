// Package tui is the terminal client: a document tree beside a viewer that
// turns into an editor, driven by a session.Session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/hyperjump/quire/internal/doctree"
	"github.com/hyperjump/quire/internal/richtext"
	"github.com/hyperjump/quire/internal/session"
	"github.com/hyperjump/quire/internal/sharelink"
	"github.com/hyperjump/quire/pkg/utils"
	"go.uber.org/zap"
)

type mode int

const (
	modeBrowse mode = iota
	modeEdit
	modeInput
	modeLibraries
)

type inputPurpose int

const (
	inputRename inputPurpose = iota
	inputLibrary
	inputUpload
)

// actionMsg reports a finished session call.
type actionMsg struct {
	what string
	err  error
	// kept is set when the user declined to discard unsaved edits.
	kept bool
}

type uploadedMsg struct {
	name string
	url  string
	err  error
}

// prompt is a yes/no question shown in the status line.
type prompt struct {
	question string
	answer   func(yes bool) tea.Cmd
}

// Option configures a Model.
type Option func(*Model)

// WithIntent sets where Start lands.
func WithIntent(intent sharelink.Intent) Option {
	return func(m *Model) { m.intent = intent }
}

// WithGlamourStyle picks a glamour standard style ("dark", "light", "notty").
// The default detects the terminal background.
func WithGlamourStyle(style string) Option {
	return func(m *Model) { m.glamourStyle = style }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.logger = utils.OrNop(l) }
}

// Model is the bubbletea model.
type Model struct {
	ctx          context.Context
	sess         *session.Session
	bridge       *Bridge
	intent       sharelink.Intent
	glamourStyle string
	logger       *zap.Logger

	snap      session.Snapshot
	rows      []doctree.Entry
	collapsed map[int64]bool
	cursor    int
	libCursor int
	lastSel   int64
	moving    *int64

	mode      mode
	prevMode  mode
	purpose   inputPurpose
	input     textinput.Model
	editor    textarea.Model
	editingID int64
	baseText  string
	viewer    viewport.Model
	renderer  *glamour.TermRenderer
	help      help.Model

	prompt *prompt
	status string
	err    error
	width  int
	height int
}

// New returns a model over sess. bridge must be the Confirmer and notifier
// the session was built with.
func New(ctx context.Context, sess *session.Session, bridge *Bridge, opts ...Option) *Model {
	m := &Model{
		ctx:       ctx,
		sess:      sess,
		bridge:    bridge,
		logger:    zap.NewNop(),
		collapsed: make(map[int64]bool),
		input:     textinput.New(),
		editor:    textarea.New(),
		viewer:    viewport.New(60, 20),
		help:      help.New(),
		width:     100,
		height:    30,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.editor.ShowLineNumbers = false
	m.input.CharLimit = 200
	m.resize()
	return m
}

// Init starts listening to the session and loads the initial state.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.listen(m.ctx), m.do("loading", func(ctx context.Context) error {
		return m.sess.Start(ctx, m.intent)
	}))
}

// do runs fn off the update loop and reports back with an actionMsg.
func (m *Model) do(what string, fn func(ctx context.Context) error) tea.Cmd {
	m.status = what + "..."
	m.err = nil
	ctx := m.ctx
	return func() tea.Msg {
		return actionMsg{what: what, err: fn(ctx)}
	}
}

// Update handles a message.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refresh()
		return m, nil

	case actionMsg:
		m.status = ""
		switch {
		case msg.kept:
			m.status = "kept unsaved edits"
		case errors.Is(msg.err, session.ErrStale):
		case msg.err != nil:
			m.err = fmt.Errorf("%s: %w", msg.what, msg.err)
			m.logger.Warn("action failed", zap.String("action", msg.what), zap.Error(msg.err))
		}
		m.refresh()
		return m, nil

	case uploadedMsg:
		m.mode = modeEdit
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.editor.InsertString(fmt.Sprintf("![%s](%s)", msg.name, msg.url))
		m.syncBuffer()
		m.status = "attached " + msg.name
		return m, nil

	case eventMsg:
		if msg.Kind == session.EventError && msg.Err != nil {
			m.err = msg.Err
		}
		m.refresh()
		return m, m.bridge.listen(m.ctx)

	case confirmMsg:
		title := msg.doc.Title
		m.prompt = &prompt{
			question: fmt.Sprintf("Discard unsaved changes to %q?", title),
			answer: func(yes bool) tea.Cmd {
				msg.reply <- yes
				return nil
			},
		}
		return m, m.bridge.listen(m.ctx)

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}

	if m.mode == modeEdit {
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.prompt != nil {
		switch msg.String() {
		case "y", "Y", "enter":
			return m.answer(true)
		case "n", "N", "esc":
			return m.answer(false)
		}
		return nil
	}
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}
	switch m.mode {
	case modeEdit:
		return m.editKey(msg)
	case modeInput:
		return m.inputKey(msg)
	case modeLibraries:
		return m.libraryKey(msg)
	}
	return m.browseKey(msg)
}

func (m *Model) answer(yes bool) tea.Cmd {
	p := m.prompt
	m.prompt = nil
	return p.answer(yes)
}

func (m *Model) browseKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Quit):
		return tea.Quit
	case key.Matches(msg, keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, keys.Collapse):
		m.collapse()
	case key.Matches(msg, keys.Expand):
		if e, ok := m.current(); ok && m.collapsed[e.Doc.ID] {
			delete(m.collapsed, e.Doc.ID)
			m.rebuildRows()
		}
	case key.Matches(msg, keys.Select):
		return m.selectCurrent()
	case key.Matches(msg, keys.Edit):
		return m.beginEdit()
	case key.Matches(msg, keys.Save):
		if m.snap.Dirty {
			return m.save()
		}
	case key.Matches(msg, keys.Cancel):
		if m.moving != nil {
			m.moving = nil
			m.status = "move cancelled"
		}
	case key.Matches(msg, keys.NewChild):
		if e, ok := m.current(); ok {
			parent := e.Doc.ID
			return m.create(&parent)
		}
		return m.create(nil)
	case key.Matches(msg, keys.NewRoot):
		return m.create(nil)
	case key.Matches(msg, keys.Rename):
		if e, ok := m.current(); ok {
			m.openInput(inputRename, "title: ", e.Doc.Title)
		}
	case key.Matches(msg, keys.Move):
		return m.markOrDrop()
	case key.Matches(msg, keys.MoveRoot):
		if m.moving != nil {
			return m.move(nil)
		}
	case key.Matches(msg, keys.Libraries):
		m.mode = modeLibraries
		m.libCursor = 0
		for i, lib := range m.snap.Libraries {
			if lib.ID() == m.snap.Library {
				m.libCursor = i
			}
		}
	case key.Matches(msg, keys.Refresh):
		return m.do("refreshing", m.sess.Refresh)
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

func (m *Model) editKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Save):
		m.syncBuffer()
		return m.save()
	case key.Matches(msg, keys.Attach):
		m.openInput(inputUpload, "image: ", "")
		return nil
	case key.Matches(msg, keys.Cancel):
		m.syncBuffer()
		if !m.sess.Dirty() {
			m.sess.CancelEdit()
			m.leaveEditor()
			return nil
		}
		m.prompt = &prompt{
			question: "Discard unsaved changes?",
			answer: func(yes bool) tea.Cmd {
				if yes {
					m.sess.CancelEdit()
				} else {
					m.status = "draft kept, e to resume, ctrl+s to save"
				}
				m.leaveEditor()
				return nil
			},
		}
		return nil
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	m.syncBuffer()
	return cmd
}

func (m *Model) inputKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.closeInput()
		return nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		m.closeInput()
		return m.submit(value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) libraryKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Up):
		if m.libCursor > 0 {
			m.libCursor--
		}
	case key.Matches(msg, keys.Down):
		if m.libCursor < len(m.snap.Libraries)-1 {
			m.libCursor++
		}
	case key.Matches(msg, keys.Create):
		m.openInput(inputLibrary, "library name: ", "")
	case key.Matches(msg, keys.Select):
		if m.libCursor >= len(m.snap.Libraries) {
			return nil
		}
		m.mode = modeBrowse
		lib := m.snap.Libraries[m.libCursor].ID()
		return m.switchLibrary(lib)
	case key.Matches(msg, keys.Cancel), key.Matches(msg, keys.Libraries):
		m.mode = modeBrowse
	case key.Matches(msg, keys.Quit):
		return tea.Quit
	}
	return nil
}

func (m *Model) openInput(purpose inputPurpose, label, value string) {
	m.prevMode = m.mode
	m.mode = modeInput
	m.purpose = purpose
	m.input.Prompt = label
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

func (m *Model) closeInput() {
	m.input.Blur()
	m.mode = m.prevMode
	if m.mode == modeLibraries && m.purpose == inputLibrary {
		m.mode = modeBrowse
	}
}

func (m *Model) submit(value string) tea.Cmd {
	if value == "" {
		return nil
	}
	switch m.purpose {
	case inputRename:
		e, ok := m.current()
		if !ok {
			return nil
		}
		id := e.Doc.ID
		return m.do("renaming", func(ctx context.Context) error {
			return m.sess.Rename(ctx, id, value)
		})
	case inputLibrary:
		return m.do("creating library", func(ctx context.Context) error {
			_, err := m.sess.CreateLibrary(ctx, value, "")
			return err
		})
	case inputUpload:
		return m.upload(value)
	}
	return nil
}

func (m *Model) selectCurrent() tea.Cmd {
	e, ok := m.current()
	if !ok {
		return nil
	}
	id := e.Doc.ID
	ctx := m.ctx
	m.status = "opening..."
	m.err = nil
	return func() tea.Msg {
		ok, err := m.sess.SelectDocument(ctx, id)
		return actionMsg{what: "open", err: err, kept: err == nil && !ok}
	}
}

func (m *Model) switchLibrary(lib string) tea.Cmd {
	ctx := m.ctx
	m.status = "opening library..."
	m.err = nil
	return func() tea.Msg {
		ok, err := m.sess.SelectLibrary(ctx, lib)
		return actionMsg{what: "open library", err: err, kept: err == nil && !ok}
	}
}

func (m *Model) create(parent *int64) tea.Cmd {
	if m.snap.ReadOnly {
		m.err = session.ErrReadOnly
		return nil
	}
	ctx := m.ctx
	m.status = "creating..."
	m.err = nil
	return func() tea.Msg {
		_, selected, err := m.sess.CreateDocument(ctx, parent)
		return actionMsg{what: "creating", err: err, kept: err == nil && !selected}
	}
}

func (m *Model) save() tea.Cmd {
	return m.do("saving", m.sess.Save)
}

func (m *Model) markOrDrop() tea.Cmd {
	e, ok := m.current()
	if !ok {
		return nil
	}
	if m.moving == nil {
		id := e.Doc.ID
		m.moving = &id
		m.status = fmt.Sprintf("moving %q: m on the new parent, 0 for root, esc to cancel", e.Doc.Title)
		return nil
	}
	target := e.Doc.ID
	return m.move(&target)
}

func (m *Model) move(target *int64) tea.Cmd {
	dragged := *m.moving
	if !m.sess.CanMove(dragged, target) {
		m.err = session.ErrInvalidMove
		return nil
	}
	m.moving = nil
	return m.do("moving", func(ctx context.Context) error {
		return m.sess.Move(ctx, dragged, target)
	})
}

func (m *Model) upload(path string) tea.Cmd {
	library := m.snap.Library
	ctx := m.ctx
	m.status = "uploading..."
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return uploadedMsg{err: err}
		}
		defer f.Close()
		res, err := m.sess.Upload(ctx, filepath.Base(path), f)
		if err != nil {
			return uploadedMsg{err: err}
		}
		url := res.URL
		if url == "" {
			url = richtext.ImagePath(library, res.Filename)
		}
		return uploadedMsg{name: res.Filename, url: url}
	}
}

func (m *Model) beginEdit() tea.Cmd {
	if m.snap.Selected == nil {
		return nil
	}
	if m.snap.ReadOnly {
		m.err = session.ErrReadOnly
		return nil
	}
	id := m.snap.Selected.ID
	if m.snap.Phase == session.DocumentEditing && m.editingID == id {
		m.mode = modeEdit
		return m.editor.Focus()
	}
	if err := m.sess.BeginEdit(); err != nil {
		m.err = err
		return nil
	}
	text, err := richtext.ToMarkdown(m.snap.Selected.Content)
	if err != nil {
		m.sess.CancelEdit()
		m.err = err
		return nil
	}
	m.editingID = id
	m.baseText = text
	m.editor.SetValue(text)
	m.mode = modeEdit
	m.refresh()
	return m.editor.Focus()
}

func (m *Model) leaveEditor() {
	m.editor.Blur()
	m.mode = modeBrowse
	m.refresh()
}

// syncBuffer hands the editor text to the session as HTML. Text identical to
// what was loaded restores the saved HTML so round-tripping does not mark the
// document dirty.
func (m *Model) syncBuffer() {
	text := m.editor.Value()
	content := m.sess.Snapshot().Saved
	if text != m.baseText {
		h, err := richtext.FromMarkdown([]byte(text))
		if err != nil {
			m.err = err
			return
		}
		content = h
	}
	if err := m.sess.Edit(content); err != nil {
		m.err = err
	}
	m.snap = m.sess.Snapshot()
}

// refresh copies session state into the model.
func (m *Model) refresh() {
	m.snap = m.sess.Snapshot()
	if m.mode == modeEdit && m.snap.Phase != session.DocumentEditing {
		m.editor.Blur()
		m.mode = modeBrowse
	}
	if m.snap.Phase != session.DocumentEditing {
		m.editingID = 0
	}
	if sel := m.snap.Selected; sel != nil && sel.ID != m.lastSel {
		m.lastSel = sel.ID
		for _, d := range m.sess.Path(sel.ID) {
			if d.ID != sel.ID {
				delete(m.collapsed, d.ID)
			}
		}
		m.rebuildRows()
		m.cursorTo(sel.ID)
	} else {
		m.rebuildRows()
	}
	m.renderViewer()
}

func (m *Model) rebuildRows() {
	m.rows = m.rows[:0]
	hideBelow := -1
	for _, e := range m.snap.Tree {
		if hideBelow >= 0 && e.Depth > hideBelow {
			continue
		}
		hideBelow = -1
		m.rows = append(m.rows, e)
		if e.HasChildren && m.collapsed[e.Doc.ID] {
			hideBelow = e.Depth
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) cursorTo(id int64) {
	for i, e := range m.rows {
		if e.Doc.ID == id {
			m.cursor = i
			return
		}
	}
}

func (m *Model) current() (doctree.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return doctree.Entry{}, false
	}
	return m.rows[m.cursor], true
}

func (m *Model) moveCursor(delta int) {
	next := m.cursor + delta
	if next >= 0 && next < len(m.rows) {
		m.cursor = next
	}
}

// collapse folds the current row, or jumps to its parent when it is a leaf or
// already folded.
func (m *Model) collapse() {
	e, ok := m.current()
	if !ok {
		return
	}
	if e.HasChildren && !m.collapsed[e.Doc.ID] {
		m.collapsed[e.Doc.ID] = true
		m.rebuildRows()
		return
	}
	for i := m.cursor - 1; i >= 0; i-- {
		if m.rows[i].Depth < e.Depth {
			m.cursor = i
			return
		}
	}
}

func (m *Model) resize() {
	treeWidth := m.treeWidth()
	right := m.width - treeWidth - 4
	if right < 20 {
		right = 20
	}
	body := m.height - 6
	if body < 5 {
		body = 5
	}
	m.viewer.Width = right - 2
	m.viewer.Height = body - 2
	m.editor.SetWidth(right - 2)
	m.editor.SetHeight(body - 2)
	m.input.Width = m.width - 20
	m.help.Width = m.width

	styleOpt := glamour.WithAutoStyle()
	if m.glamourStyle != "" {
		styleOpt = glamour.WithStandardStyle(m.glamourStyle)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(right-4))
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", zap.Error(err))
		r = nil
	}
	m.renderer = r
}

func (m *Model) treeWidth() int {
	w := m.width / 3
	if w < 24 {
		w = 24
	}
	return w
}

func (m *Model) renderViewer() {
	sel := m.snap.Selected
	if sel == nil {
		m.viewer.SetContent(dimStyle.Render("Select a document."))
		return
	}
	text, err := richtext.ToMarkdown(sel.Content)
	if err != nil {
		m.viewer.SetContent(err.Error())
		return
	}
	if strings.TrimSpace(text) == "" {
		m.viewer.SetContent(dimStyle.Render("(empty)"))
		return
	}
	if m.renderer != nil {
		if out, err := m.renderer.Render(text); err == nil {
			text = out
		}
	}
	m.viewer.SetContent(text)
	m.viewer.GotoTop()
}
