package tui

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hyperjump/quire/internal/domain"
	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/internal/session"
	"github.com/hyperjump/quire/internal/sharelink"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	mu     sync.Mutex
	libs   []models.Library
	docs   map[string][]models.Document
	nextID int64
}

func newMem() *memBackend {
	return &memBackend{
		libs: []models.Library{{Name: "notes", Path: "/q/notes"}, {Name: "work", Path: "/q/work"}},
		docs: map[string][]models.Document{
			"/q/notes": {
				{ID: 1, Title: "Welcome", Content: "<p>hello</p>"},
				{ID: 2, Title: "Child", Content: "<p>child</p>", ParentID: models.Int64(1)},
				{ID: 3, Title: "Other", Content: "<p>other</p>"},
			},
			"/q/work": {{ID: 10, Title: "Plan", Content: "<p>plan</p>"}},
		},
		nextID: 100,
	}
}

func (b *memBackend) doc(library string, id int64) *models.Document {
	for i := range b.docs[library] {
		if b.docs[library][i].ID == id {
			return &b.docs[library][i]
		}
	}
	return nil
}

func (b *memBackend) ListLibraries(context.Context) ([]models.Library, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Library(nil), b.libs...), nil
}

func (b *memBackend) CreateLibrary(_ context.Context, name, _ string) (models.Library, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lib := models.Library{Name: name, Path: "/q/" + name}
	b.libs = append(b.libs, lib)
	b.docs[lib.Path] = nil
	return lib, nil
}

func (b *memBackend) GetTree(_ context.Context, library string) ([]models.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, ok := b.docs[library]
	if !ok {
		return nil, domain.NotFound("library", library)
	}
	out := make([]models.Document, len(docs))
	for i, d := range docs {
		d.Content = ""
		out[i] = d
	}
	return out, nil
}

func (b *memBackend) GetDocument(_ context.Context, library string, id int64) (*models.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.doc(library, id)
	if d == nil {
		return nil, domain.NotFound("document", "")
	}
	c := *d
	return &c, nil
}

func (b *memBackend) CreateDocument(_ context.Context, library string, req models.CreateDocumentRequest) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.docs[library] = append(b.docs[library], models.Document{ID: b.nextID, Title: req.Title, Content: req.Content, ParentID: req.ParentID})
	return b.nextID, nil
}

func (b *memBackend) UpdateDocument(_ context.Context, library string, req models.UpdateDocumentRequest) (*models.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.doc(library, req.ID)
	if d == nil {
		return nil, domain.NotFound("document", "")
	}
	if req.Title != nil {
		d.Title = *req.Title
	}
	if req.Content != nil {
		d.Content = *req.Content
	}
	c := *d
	return &c, nil
}

func (b *memBackend) UpdateParent(_ context.Context, library string, id int64, parentID *int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.doc(library, id)
	if d == nil {
		return domain.NotFound("document", "")
	}
	d.ParentID = parentID
	return nil
}

func (b *memBackend) UploadImage(_ context.Context, _ string, _ int64, filename string, r io.Reader) (models.UploadResponse, error) {
	if _, err := io.ReadAll(r); err != nil {
		return models.UploadResponse{}, err
	}
	return models.UploadResponse{Filename: "stored-" + filename}, nil
}

type fixture struct {
	backend *memBackend
	bridge  *Bridge
	sess    *session.Session
	m       *Model
}

func newFixture(t *testing.T, intent sharelink.Intent) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f := &fixture{backend: newMem(), bridge: NewBridge()}
	f.sess = session.New(f.backend, session.WithConfirmer(f.bridge), session.WithNotify(f.bridge.Notify))
	f.m = New(ctx, f.sess, f.bridge, WithGlamourStyle("notty"), WithIntent(intent))
	require.NoError(t, f.sess.Start(ctx, intent))
	f.m.refresh()
	return f
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "ctrl+o":
		return tea.KeyMsg{Type: tea.KeyCtrlO}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// press sends keys in order and returns the command produced by the last one.
func (f *fixture) press(keys ...string) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = f.m.Update(keyMsg(k))
	}
	return cmd
}

// finish runs a session command and feeds its result back.
func (f *fixture) finish(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	_, ok := msg.(actionMsg)
	require.True(t, ok, "expected an action result, got %T", msg)
	f.m.Update(msg)
}

func (f *fixture) titles() []string {
	out := make([]string, 0, len(f.m.rows))
	for _, e := range f.m.rows {
		out = append(out, e.Doc.Title)
	}
	return out
}

func TestStartSelectsFirstDocument(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})

	require.Equal(t, []string{"Welcome", "Child", "Other"}, f.titles())
	require.NotNil(t, f.m.snap.Selected)
	require.Equal(t, int64(1), f.m.snap.Selected.ID)
	require.Equal(t, 0, f.m.cursor)
	require.Contains(t, f.m.View(), "quire · notes")
	require.Contains(t, f.m.View(), "hello")
}

func TestNavigateAndSelect(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})

	f.press("j", "j")
	require.Equal(t, 2, f.m.cursor)
	f.press("j")
	require.Equal(t, 2, f.m.cursor, "cursor stays on the last row")

	f.finish(t, f.press("enter"))
	require.Equal(t, int64(3), f.m.snap.Selected.ID)
	require.Contains(t, f.m.viewer.View(), "other")

	f.press("k", "k")
	require.Equal(t, 0, f.m.cursor)
}

func TestCollapseAndExpand(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})

	f.press("h")
	require.Equal(t, []string{"Welcome", "Other"}, f.titles())
	require.Contains(t, f.m.View(), "▸ Welcome")

	f.press("l")
	require.Equal(t, []string{"Welcome", "Child", "Other"}, f.titles())

	// on a leaf, h jumps to the parent
	f.press("j", "h")
	require.Equal(t, 0, f.m.cursor)
}

func TestEditAndSave(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})

	f.press("e")
	require.Equal(t, modeEdit, f.m.mode)
	require.Equal(t, "hello", f.m.editor.Value())
	require.False(t, f.sess.Dirty())

	f.press("!")
	require.True(t, f.sess.Dirty())
	require.Contains(t, f.m.header(), "unsaved")

	f.finish(t, f.press("ctrl+s"))
	require.Equal(t, modeBrowse, f.m.mode)
	require.False(t, f.sess.Dirty())
	require.Contains(t, f.backend.doc("/q/notes", 1).Content, "hello!")
}

func TestCancelUnchangedEdit(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})

	f.press("e", "esc")
	require.Equal(t, modeBrowse, f.m.mode)
	require.Nil(t, f.m.prompt)
	require.Equal(t, session.DocumentViewing, f.sess.Snapshot().Phase)
}

func TestCancelDirtyEditAsks(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})

	f.press("e", "!", "esc")
	require.NotNil(t, f.m.prompt)
	require.Contains(t, f.m.View(), "Discard unsaved changes?")

	f.press("y")
	require.Nil(t, f.m.prompt)
	require.Equal(t, modeBrowse, f.m.mode)
	require.False(t, f.sess.Dirty())
	require.Equal(t, "<p>hello</p>", f.backend.doc("/q/notes", 1).Content)
}

func TestDirtyGuardPromptsBeforeSwitching(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})

	// keep the draft and go back to the tree
	f.press("e", "!", "esc", "n")
	require.Equal(t, modeBrowse, f.m.mode)
	require.True(t, f.sess.Dirty())

	selectOther := func(answer string) {
		t.Helper()
		cmd := f.press("j", "j", "enter")
		result := make(chan tea.Msg, 1)
		go func() { result <- cmd() }()

		var req confirmMsg
		select {
		case req = <-f.bridge.requests:
		case <-time.After(2 * time.Second):
			t.Fatal("no confirmation requested")
		}
		f.m.Update(req)
		require.Contains(t, f.m.statusLine(), `Discard unsaved changes to "Welcome"?`)
		f.press(answer)

		select {
		case msg := <-result:
			f.m.Update(msg)
		case <-time.After(2 * time.Second):
			t.Fatal("selection did not finish")
		}
	}

	selectOther("n")
	require.Equal(t, int64(1), f.m.snap.Selected.ID)
	require.True(t, f.sess.Dirty())
	require.Equal(t, "kept unsaved edits", f.m.status)

	f.press("k", "k")
	selectOther("y")
	require.Equal(t, int64(3), f.m.snap.Selected.ID)
	require.False(t, f.sess.Dirty())
}

func TestMoveMarkAndDrop(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})

	// Welcome onto its own child is refused
	f.press("m", "j")
	require.Nil(t, f.press("m"))
	require.ErrorIs(t, f.m.err, session.ErrInvalidMove)

	f.press("esc")
	require.Nil(t, f.m.moving)

	// Other under Welcome
	f.press("j", "m", "k", "k")
	f.finish(t, f.press("m"))
	require.Equal(t, int64(1), *f.backend.doc("/q/notes", 3).ParentID)
	require.Equal(t, []string{"Welcome", "Child", "Other"}, f.titles())
	require.Equal(t, 1, f.m.rows[2].Depth)

	// and back to the root
	f.press("j", "j", "m")
	f.finish(t, f.press("0"))
	require.Nil(t, f.backend.doc("/q/notes", 3).ParentID)
}

func TestRenameAndCreate(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})

	f.press("j", "r")
	require.Equal(t, modeInput, f.m.mode)
	require.Equal(t, "Child", f.m.input.Value())
	f.m.input.SetValue("Renamed")
	f.finish(t, f.press("enter"))
	require.Equal(t, "Renamed", f.backend.doc("/q/notes", 2).Title)
	require.Equal(t, []string{"Welcome", "Renamed", "Other"}, f.titles())

	f.finish(t, f.press("n"))
	sel := f.m.snap.Selected
	require.NotNil(t, sel)
	require.Equal(t, session.DefaultTitle, sel.Title)
	require.Equal(t, int64(2), *f.backend.doc("/q/notes", sel.ID).ParentID)
	e, ok := f.m.current()
	require.True(t, ok)
	require.Equal(t, sel.ID, e.Doc.ID, "cursor follows the new document")

	f.finish(t, f.press("N"))
	require.Nil(t, f.backend.doc("/q/notes", f.m.snap.Selected.ID).ParentID)
}

func TestSwitchAndCreateLibrary(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})

	f.press("L")
	require.Equal(t, modeLibraries, f.m.mode)
	require.Contains(t, f.m.View(), "Libraries")
	f.finish(t, f.press("j", "enter"))
	require.Equal(t, "/q/work", f.m.snap.Library)
	require.Equal(t, []string{"Plan"}, f.titles())

	f.press("L", "c")
	require.Equal(t, modeInput, f.m.mode)
	f.m.input.SetValue("ideas")
	f.finish(t, f.press("enter"))
	require.Equal(t, "/q/ideas", f.m.snap.Library)
	require.Contains(t, f.m.View(), "Empty library")
}

func TestReadOnlyRefusesEdits(t *testing.T) {
	f := newFixture(t, sharelink.Intent{Library: "/q/notes", DocumentID: models.Int64(3), ReadOnly: true})

	require.Equal(t, int64(3), f.m.snap.Selected.ID)
	require.Contains(t, f.m.View(), "read-only")

	f.press("e")
	require.Equal(t, modeBrowse, f.m.mode)
	require.ErrorIs(t, f.m.err, session.ErrReadOnly)
	require.Nil(t, f.press("n"))
}

func TestAttachImageInsertsMarkdown(t *testing.T) {
	f := newFixture(t, sharelink.Intent{})
	path := t.TempDir() + "/diagram.png"
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	f.press("e", "ctrl+o")
	require.Equal(t, modeInput, f.m.mode)
	f.m.input.SetValue(path)
	cmd := f.press("enter")
	require.NotNil(t, cmd)
	f.m.Update(cmd())

	require.Equal(t, modeEdit, f.m.mode)
	require.True(t, strings.HasSuffix(f.m.editor.Value(), "![stored-diagram.png](/api/images/%2Fq%2Fnotes/stored-diagram.png)"), f.m.editor.Value())
	require.Contains(t, f.sess.Snapshot().Selected.Content, `<img src="/api/images/%2Fq%2Fnotes/stored-diagram.png"`)
}

func TestBridgeNotifyNeverBlocks(t *testing.T) {
	b := NewBridge()
	for i := 0; i < 200; i++ {
		b.Notify(session.Event{Kind: session.EventTree})
	}
	require.Len(t, b.events, cap(b.events))
}

func TestBridgeConfirmHonoursContext(t *testing.T) {
	b := NewBridge()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, b.ConfirmDiscard(ctx, models.Document{ID: 1}))
}
