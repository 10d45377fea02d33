// Package session keeps the client-side view of one user's work: the chosen
// library, its document tree, the selected document and its edit buffer.
//
// The remote service is the source of truth. The tree is rebuilt from a fresh
// fetch after every structural change. Responses that arrive after the user
// has moved on (another library or document selected) are dropped by
// comparing generation counters taken when the request started.
//
// Mutations are serialised: a second create/rename/save/move/upload waits
// until the first one and its tree refetch have completed, so results are
// applied in the order the user issued them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hyperjump/quire/internal/doctree"
	"github.com/hyperjump/quire/internal/domain"
	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/internal/sharelink"
	"github.com/hyperjump/quire/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// DefaultTitle is the title given to newly created documents.
const DefaultTitle = "New Document"

var (
	// ErrStale means a response was discarded because the selection moved on.
	ErrStale = errors.New("stale response discarded")
	// ErrNoLibrary means the operation needs a selected library.
	ErrNoLibrary = errors.New("no library selected")
	// ErrNoDocument means the operation needs a selected document.
	ErrNoDocument = errors.New("no document selected")
	// ErrReadOnly means the session was opened from a read-only link.
	ErrReadOnly = errors.New("document opened read-only")
	// ErrNotEditing means Edit was called outside edit mode.
	ErrNotEditing = errors.New("document is not in edit mode")
	// ErrEmptyTitle rejects blank titles.
	ErrEmptyTitle = fmt.Errorf("%w: title must not be empty", domain.ErrValidation)
	// ErrInvalidMove rejects moves onto self or into a descendant.
	ErrInvalidMove = doctree.ErrInvalidMove
)

// Backend is the subset of the REST client the session drives.
type Backend interface {
	ListLibraries(ctx context.Context) ([]models.Library, error)
	CreateLibrary(ctx context.Context, name, basePath string) (models.Library, error)
	GetTree(ctx context.Context, library string) ([]models.Document, error)
	GetDocument(ctx context.Context, library string, id int64) (*models.Document, error)
	CreateDocument(ctx context.Context, library string, req models.CreateDocumentRequest) (int64, error)
	UpdateDocument(ctx context.Context, library string, req models.UpdateDocumentRequest) (*models.Document, error)
	UpdateParent(ctx context.Context, library string, id int64, parentID *int64) error
	UploadImage(ctx context.Context, library string, docID int64, filename string, r io.Reader) (models.UploadResponse, error)
}

// Confirmer decides whether unsaved edits to doc may be thrown away.
type Confirmer interface {
	ConfirmDiscard(ctx context.Context, doc models.Document) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, doc models.Document) bool

// ConfirmDiscard calls f.
func (f ConfirmFunc) ConfirmDiscard(ctx context.Context, doc models.Document) bool {
	return f(ctx, doc)
}

// NeverDiscard keeps unsaved edits; it is the default Confirmer.
var NeverDiscard = ConfirmFunc(func(context.Context, models.Document) bool { return false })

// Option configures a Session.
type Option func(*Session)

// WithConfirmer sets who is asked before unsaved edits are discarded.
func WithConfirmer(c Confirmer) Option {
	return func(s *Session) {
		if c != nil {
			s.confirm = c
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = utils.OrNop(l) }
}

// WithNotify registers fn to receive events. fn runs on the goroutine that
// caused the event, outside the session lock.
func WithNotify(fn func(Event)) Option {
	return func(s *Session) { s.notify = fn }
}

// Session is safe for concurrent use.
type Session struct {
	backend Backend
	confirm Confirmer
	logger  *zap.Logger
	notify  func(Event)

	mutations *semaphore.Weighted
	refreshes singleflight.Group

	mu        sync.Mutex
	libraries []models.Library
	library   string
	forest    *doctree.Forest
	selected  *int64
	title     string
	buffer    string
	saved     string
	editing   bool
	readOnly  bool
	libGen    uint64
	docGen    uint64
	treeSeq   uint64
	treeSeen  uint64
}

// New returns a session with nothing selected.
func New(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend:   backend,
		confirm:   NeverDiscard,
		logger:    zap.NewNop(),
		mutations: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the library list and lands where intent points. Without an
// intent the first library and its first root document are selected.
func (s *Session) Start(ctx context.Context, intent sharelink.Intent) error {
	libs, err := s.loadLibraries(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.readOnly = intent.ReadOnly
	s.mu.Unlock()

	target := intent.Library
	if target == "" && len(libs) > 0 {
		target = libs[0].ID()
	}
	if target == "" {
		s.logger.Info("no libraries available")
		return nil
	}
	return s.openLibrary(ctx, target, intent.DocumentID, !intent.Present())
}

// Libraries reloads and returns the library list.
func (s *Session) Libraries(ctx context.Context) ([]models.Library, error) {
	return s.loadLibraries(ctx)
}

func (s *Session) loadLibraries(ctx context.Context) ([]models.Library, error) {
	libs, err := s.backend.ListLibraries(ctx)
	if err != nil {
		s.emit(Event{Kind: EventError, Err: err})
		return nil, fmt.Errorf("load libraries: %w", err)
	}
	s.mu.Lock()
	s.libraries = libs
	s.mu.Unlock()
	s.emit(Event{Kind: EventLibraries})
	return libs, nil
}

// CreateLibrary creates a library and switches to it.
func (s *Session) CreateLibrary(ctx context.Context, name, basePath string) (models.Library, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Library{}, fmt.Errorf("%w: library name must not be empty", domain.ErrValidation)
	}
	lib, err := s.backend.CreateLibrary(ctx, name, basePath)
	if err != nil {
		s.emit(Event{Kind: EventError, Err: err})
		return models.Library{}, fmt.Errorf("create library %q: %w", name, err)
	}
	if _, err := s.loadLibraries(ctx); err != nil {
		return lib, err
	}
	if _, err := s.SelectLibrary(ctx, lib.ID()); err != nil {
		return lib, err
	}
	return lib, nil
}

// SelectLibrary switches to library, discarding the current tree. It returns
// false without changing anything when unsaved edits exist and the Confirmer
// declines to discard them.
func (s *Session) SelectLibrary(ctx context.Context, library string) (bool, error) {
	if !s.mayDiscard(ctx) {
		return false, nil
	}
	return true, s.openLibrary(ctx, library, nil, true)
}

func (s *Session) openLibrary(ctx context.Context, library string, docID *int64, selectFirst bool) error {
	s.mu.Lock()
	s.libGen++
	gen := s.libGen
	s.docGen++
	s.library = library
	s.forest = nil
	s.treeSeen = 0
	s.clearSelectionLocked()
	s.mu.Unlock()
	s.logger.Debug("library selected", zap.String("library", library), zap.Uint64("generation", gen))

	forest, err := s.loadTree(ctx, library, gen, false)
	if err != nil {
		return err
	}
	switch {
	case docID != nil:
		return s.selectDocument(ctx, *docID)
	case selectFirst:
		if first, ok := forest.First(); ok {
			return s.selectDocument(ctx, first)
		}
	}
	return nil
}

// Refresh refetches the tree of the current library.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	lib, gen := s.library, s.libGen
	s.mu.Unlock()
	if lib == "" {
		return ErrNoLibrary
	}
	_, err := s.loadTree(ctx, lib, gen, false)
	return err
}

type treeFetch struct {
	docs []models.Document
	seq  uint64
}

// loadTree fetches and installs the tree of library if gen is still current.
// Concurrent loads of the same library share one request, which is not
// cancelled when one of its callers gives up. A fresh load never joins a
// request that was already in flight.
func (s *Session) loadTree(ctx context.Context, library string, gen uint64, fresh bool) (*doctree.Forest, error) {
	if fresh {
		s.refreshes.Forget(library)
	}
	ch := s.refreshes.DoChan(library, func() (any, error) {
		s.mu.Lock()
		s.treeSeq++
		seq := s.treeSeq
		s.mu.Unlock()
		docs, err := s.backend.GetTree(context.WithoutCancel(ctx), library)
		return treeFetch{docs: docs, seq: seq}, err
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	fetched := res.Val.(treeFetch)

	s.mu.Lock()
	if s.libGen != gen || s.library != library {
		s.mu.Unlock()
		s.logger.Debug("tree response discarded", zap.String("library", library), zap.Uint64("generation", gen))
		return nil, ErrStale
	}
	if res.Err != nil {
		s.mu.Unlock()
		s.emit(Event{Kind: EventError, Library: library, Err: res.Err})
		return nil, fmt.Errorf("load tree of %s: %w", library, res.Err)
	}
	if fetched.seq < s.treeSeen {
		// a fetch that started later has already been installed
		forest := s.forest
		s.mu.Unlock()
		s.logger.Debug("tree response superseded", zap.String("library", library), zap.Uint64("fetch", fetched.seq))
		return forest, nil
	}
	forest := doctree.BuildTree(fetched.docs)
	if s.selected != nil {
		node, ok := forest.Get(*s.selected)
		if ok {
			// the tree listing may not carry bodies; keep the one we fetched
			node.Content = s.saved
			forest.Merge(node)
			s.title = node.Title
		} else {
			s.clearSelectionLocked()
		}
	}
	s.forest = forest
	s.treeSeen = fetched.seq
	s.mu.Unlock()

	s.logger.Debug("tree loaded",
		zap.String("library", library),
		zap.Int("documents", forest.Len()),
		zap.Bool("shared", res.Shared),
	)
	s.emit(Event{Kind: EventTree, Library: library})
	return forest, nil
}

// SelectDocument makes id the current document and fetches its full content.
// It returns false without changing anything when unsaved edits exist and the
// Confirmer declines to discard them.
func (s *Session) SelectDocument(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	same := s.selected != nil && *s.selected == id
	s.mu.Unlock()
	if same {
		return true, nil
	}
	if !s.mayDiscard(ctx) {
		return false, nil
	}
	return true, s.selectDocument(ctx, id)
}

func (s *Session) selectDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	if s.library == "" {
		s.mu.Unlock()
		return ErrNoLibrary
	}
	node, ok := s.forest.Get(id)
	if !ok {
		s.mu.Unlock()
		return domain.NotFound("document", fmt.Sprint(id))
	}
	lib, libGen := s.library, s.libGen
	s.docGen++
	gen := s.docGen
	s.selected = models.Int64(id)
	s.title = node.Title
	s.buffer = node.Content
	s.saved = node.Content
	s.editing = false
	s.mu.Unlock()
	s.emit(Event{Kind: EventSelection, Library: lib, DocumentID: id})

	doc, err := s.backend.GetDocument(ctx, lib, id)

	s.mu.Lock()
	if s.libGen != libGen || s.docGen != gen {
		s.mu.Unlock()
		s.logger.Debug("document response discarded", zap.Int64("id", id), zap.Uint64("generation", gen))
		return ErrStale
	}
	if err != nil {
		s.mu.Unlock()
		s.emit(Event{Kind: EventError, Library: lib, DocumentID: id, Err: err})
		return fmt.Errorf("load document %d: %w", id, err)
	}
	s.forest.Merge(*doc)
	if s.buffer == s.saved {
		s.buffer = doc.Content
	}
	s.saved = doc.Content
	s.title = doc.Title
	s.mu.Unlock()

	s.emit(Event{Kind: EventDocument, Library: lib, DocumentID: id})
	return nil
}

// mayDiscard asks the Confirmer when the current document has unsaved edits.
func (s *Session) mayDiscard(ctx context.Context) bool {
	s.mu.Lock()
	dirty := s.dirtyLocked()
	var cur models.Document
	if s.selected != nil {
		cur = s.currentLocked()
	}
	s.mu.Unlock()
	if !dirty {
		return true
	}
	ok := s.confirm.ConfirmDiscard(ctx, cur)
	s.logger.Debug("discard unsaved edits", zap.Int64("id", cur.ID), zap.Bool("confirmed", ok))
	return ok
}

// BeginEdit switches the selected document to edit mode.
func (s *Session) BeginEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return ErrNoDocument
	}
	if s.readOnly {
		return ErrReadOnly
	}
	s.editing = true
	return nil
}

// Edit replaces the edit buffer. The document is dirty while the buffer
// differs from the last saved content.
func (s *Session) Edit(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return ErrNoDocument
	}
	if !s.editing {
		return ErrNotEditing
	}
	s.buffer = content
	return nil
}

// CancelEdit drops unsaved edits and returns to viewing.
func (s *Session) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = s.saved
	s.editing = false
}

// Dirty reports whether the buffer holds unsaved edits.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirtyLocked()
}

// Save persists the edit buffer. On failure the edits stay dirty.
func (s *Session) Save(ctx context.Context) error {
	return s.mutate(ctx, func() error {
		s.mu.Lock()
		if s.selected == nil {
			s.mu.Unlock()
			return ErrNoDocument
		}
		if s.readOnly {
			s.mu.Unlock()
			return ErrReadOnly
		}
		lib, id, content, gen := s.library, *s.selected, s.buffer, s.libGen
		s.mu.Unlock()

		_, err := s.backend.UpdateDocument(ctx, lib, models.UpdateDocumentRequest{ID: id, Content: &content})

		s.mu.Lock()
		if err != nil {
			s.mu.Unlock()
			s.logger.Warn("save failed", zap.Int64("id", id), zap.Error(err))
			s.emit(Event{Kind: EventError, Library: lib, DocumentID: id, Err: err})
			return fmt.Errorf("save document %d: %w", id, err)
		}
		if s.libGen != gen || s.selected == nil || *s.selected != id {
			s.mu.Unlock()
			return nil
		}
		s.saved = content
		if s.buffer == content {
			s.editing = false
		}
		s.forest.Merge(models.Document{ID: id, Title: s.title, Content: content})
		s.mu.Unlock()

		s.logger.Info("document saved", zap.String("library", lib), zap.Int64("id", id))
		s.emit(Event{Kind: EventSaved, Library: lib, DocumentID: id})
		return nil
	})
}

// Rename changes the title of id. Blank titles are rejected and an unchanged
// title is a no-op.
func (s *Session) Rename(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	return s.mutate(ctx, func() error {
		s.mu.Lock()
		if s.readOnly {
			s.mu.Unlock()
			return ErrReadOnly
		}
		node, ok := s.forest.Get(id)
		lib, gen := s.library, s.libGen
		s.mu.Unlock()
		if !ok {
			return domain.NotFound("document", fmt.Sprint(id))
		}
		if node.Title == title {
			return nil
		}

		if _, err := s.backend.UpdateDocument(ctx, lib, models.UpdateDocumentRequest{ID: id, Title: &title}); err != nil {
			s.emit(Event{Kind: EventError, Library: lib, DocumentID: id, Err: err})
			return fmt.Errorf("rename document %d: %w", id, err)
		}

		s.mu.Lock()
		if s.libGen == gen {
			if cur, ok := s.forest.Get(id); ok {
				cur.Title = title
				s.forest.Merge(cur)
			}
			if s.selected != nil && *s.selected == id {
				s.title = title
			}
		}
		s.mu.Unlock()
		s.emit(Event{Kind: EventTree, Library: lib, DocumentID: id})
		return nil
	})
}

// CreateDocument adds an empty document under parent (nil for root),
// refetches the tree and selects the new document. selected is false when
// unsaved edits exist and the Confirmer declines to discard them; the
// document is created either way.
func (s *Session) CreateDocument(ctx context.Context, parent *int64) (id int64, selected bool, err error) {
	err = s.mutate(ctx, func() error {
		s.mu.Lock()
		if s.readOnly {
			s.mu.Unlock()
			return ErrReadOnly
		}
		lib, gen := s.library, s.libGen
		s.mu.Unlock()
		if lib == "" {
			return ErrNoLibrary
		}

		newID, err := s.backend.CreateDocument(ctx, lib, models.CreateDocumentRequest{
			Title:    DefaultTitle,
			ParentID: parent,
		})
		if err != nil {
			s.emit(Event{Kind: EventError, Library: lib, Err: err})
			return fmt.Errorf("create document: %w", err)
		}
		id = newID
		s.logger.Info("document created", zap.String("library", lib), zap.Int64("id", id))
		_, err = s.loadTree(ctx, lib, gen, true)
		return err
	})
	if err != nil {
		return id, false, err
	}
	selected, err = s.SelectDocument(ctx, id)
	return id, selected, err
}

// CanMove reports whether dragged may be dropped on target (nil for root).
func (s *Session) CanMove(dragged int64, target *int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.CanReparent(dragged, target)
}

// Move re-parents dragged under target (nil for root) on the service and
// rebuilds the tree from a fresh fetch. The move is checked against the tree
// as it stands once earlier mutations have finished.
func (s *Session) Move(ctx context.Context, dragged int64, target *int64) error {
	return s.mutate(ctx, func() error {
		s.mu.Lock()
		if s.readOnly {
			s.mu.Unlock()
			return ErrReadOnly
		}
		ok := s.forest.CanReparent(dragged, target)
		lib, gen := s.library, s.libGen
		s.mu.Unlock()
		if !ok {
			return fmt.Errorf("move %d: %w", dragged, ErrInvalidMove)
		}

		if err := s.backend.UpdateParent(ctx, lib, dragged, target); err != nil {
			s.emit(Event{Kind: EventError, Library: lib, DocumentID: dragged, Err: err})
			return fmt.Errorf("move document %d: %w", dragged, err)
		}
		s.logger.Info("document moved", zap.String("library", lib), zap.Int64("id", dragged), zap.Int64p("parent_id", target))
		_, err := s.loadTree(ctx, lib, gen, true)
		return err
	})
}

// Upload stores an image for the selected document and returns the service's answer.
func (s *Session) Upload(ctx context.Context, filename string, r io.Reader) (models.UploadResponse, error) {
	var res models.UploadResponse
	err := s.mutate(ctx, func() error {
		s.mu.Lock()
		if s.selected == nil {
			s.mu.Unlock()
			return ErrNoDocument
		}
		if s.readOnly {
			s.mu.Unlock()
			return ErrReadOnly
		}
		lib, id := s.library, *s.selected
		s.mu.Unlock()

		var err error
		res, err = s.backend.UploadImage(ctx, lib, id, filename, r)
		if err != nil {
			s.emit(Event{Kind: EventError, Library: lib, DocumentID: id, Err: err})
			return fmt.Errorf("upload %s: %w", filename, err)
		}
		return nil
	})
	return res, err
}

// mutate runs fn while holding the mutation slot.
func (s *Session) mutate(ctx context.Context, fn func() error) error {
	if err := s.mutations.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.mutations.Release(1)
	return fn()
}

func (s *Session) emit(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}

func (s *Session) dirtyLocked() bool {
	return s.selected != nil && s.buffer != s.saved
}

func (s *Session) clearSelectionLocked() {
	s.selected = nil
	s.title = ""
	s.buffer = ""
	s.saved = ""
	s.editing = false
}

func (s *Session) currentLocked() models.Document {
	d, _ := s.forest.Get(*s.selected)
	d.ID = *s.selected
	d.Title = s.title
	d.Content = s.buffer
	return d
}
