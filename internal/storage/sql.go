package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/quire/internal/domain"
	"github.com/hyperjump/quire/internal/models"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS libraries (
	path TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	library TEXT NOT NULL REFERENCES libraries(path),
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	parent_id INTEGER REFERENCES documents(id),
	source_path TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_library ON documents(library, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_source ON documents(library, source_path);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS libraries (
	path TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	library TEXT NOT NULL REFERENCES libraries(path),
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	parent_id BIGINT REFERENCES documents(id),
	source_path TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_documents_library ON documents(library, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_source ON documents(library, source_path);
`

var documentColumns = []string{"id", "library", "title", "content", "parent_id", "source_path", "created_at", "updated_at"}

// outline is the tree listing projection: no bodies.
var outlineColumns = []string{"id", "library", "title", "'' AS content", "parent_id", "source_path", "created_at", "updated_at"}

// SQLStore implements Storage on SQLite or PostgreSQL.
type SQLStore struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// Open connects with driver and dsn and initializes the schema. For SQLite
// the dsn is a file path whose parent directories are created if needed.
func Open(driver, dsn string) (*SQLStore, error) {
	var schema string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		schema = sqliteSchema
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn += "?_busy_timeout=5000&_foreign_keys=1"
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an already initialized database.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if db.DriverName() != DriverSQLite {
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLStore{db: db, sb: sb}
}

// ListLibraries returns libraries ordered by name.
func (s *SQLStore) ListLibraries(ctx context.Context) ([]models.Library, error) {
	query, args, err := s.sb.Select("name", "path").From("libraries").OrderBy("name").ToSql()
	if err != nil {
		return nil, err
	}
	libs := []models.Library{}
	if err := s.db.SelectContext(ctx, &libs, query, args...); err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	return libs, nil
}

// CreateLibrary inserts lib. Duplicate names or paths are conflicts.
func (s *SQLStore) CreateLibrary(ctx context.Context, lib models.Library) error {
	query, args, err := s.sb.Insert("libraries").
		Columns("path", "name", "created_at").
		Values(lib.Path, lib.Name, time.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError(fmt.Sprintf("library %q already exists", lib.Name))
		}
		return fmt.Errorf("create library: %w", err)
	}
	return nil
}

// GetLibrary returns the library whose path, or failing that name, is key.
func (s *SQLStore) GetLibrary(ctx context.Context, key string) (*models.Library, error) {
	for _, col := range []string{"path", "name"} {
		query, args, err := s.sb.Select("name", "path").From("libraries").Where(sq.Eq{col: key}).ToSql()
		if err != nil {
			return nil, err
		}
		var lib models.Library
		err = s.db.GetContext(ctx, &lib, query, args...)
		if err == nil {
			return &lib, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get library: %w", err)
		}
	}
	return nil, domain.NotFound("library", key)
}

// ListDocuments returns the documents of library in insertion order.
// Without content the bodies are left empty.
func (s *SQLStore) ListDocuments(ctx context.Context, library string, withContent bool) ([]models.Document, error) {
	cols := outlineColumns
	if withContent {
		cols = documentColumns
	}
	query, args, err := s.sb.Select(cols...).From("documents").
		Where(sq.Eq{"library": library}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	docs := []models.Document{}
	if err := s.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// GetDocument returns one document of library.
func (s *SQLStore) GetDocument(ctx context.Context, library string, id int64) (*models.Document, error) {
	return getDocument(ctx, s.db, s.sb, library, id)
}

func getDocument(ctx context.Context, q sqlx.QueryerContext, sb sq.StatementBuilderType, library string, id int64) (*models.Document, error) {
	query, args, err := sb.Select(documentColumns...).From("documents").
		Where(sq.Eq{"library": library, "id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var doc models.Document
	if err := sqlx.GetContext(ctx, q, &doc, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("document", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// CreateDocument inserts doc and sets its ID and timestamps.
// A parent must exist in the same library.
func (s *SQLStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertDocument(ctx, tx, doc); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) insertDocument(ctx context.Context, tx *sqlx.Tx, doc *models.Document) error {
	if doc.ParentID != nil {
		if _, err := getDocument(ctx, tx, s.sb, doc.Library, *doc.ParentID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Invalid("parent document %d does not exist in library", *doc.ParentID)
			}
			return err
		}
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	query, args, err := s.sb.Insert("documents").
		Columns("library", "title", "content", "parent_id", "source_path", "created_at", "updated_at").
		Values(doc.Library, doc.Title, doc.Content, doc.ParentID, doc.SourcePath, doc.CreatedAt, doc.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return err
	}
	if err := tx.QueryRowxContext(ctx, query, args...).Scan(&doc.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("a document with this source already exists")
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// UpdateDocument sets title and/or content. Nil fields are left unchanged.
func (s *SQLStore) UpdateDocument(ctx context.Context, library string, id int64, title, content *string) (*models.Document, error) {
	upd := s.sb.Update("documents").
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"library": library, "id": id})
	if title != nil {
		upd = upd.Set("title", *title)
	}
	if content != nil {
		upd = upd.Set("content", *content)
	}
	query, args, err := upd.ToSql()
	if err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, domain.NotFound("document", strconv.FormatInt(id, 10))
	}
	return s.GetDocument(ctx, library, id)
}

// UpdateParent moves id under parentID, or to the root when nil. The ancestor
// chain of the new parent is walked inside the transaction and a move that
// would put id under itself fails with domain.ErrCycle.
func (s *SQLStore) UpdateParent(ctx context.Context, library string, id int64, parentID *int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := getDocument(ctx, tx, s.sb, library, id); err != nil {
		return err
	}
	if parentID != nil {
		if err := s.checkAncestry(ctx, tx, library, id, *parentID); err != nil {
			return err
		}
	}

	query, args, err := s.sb.Update("documents").
		Set("parent_id", parentID).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"library": library, "id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update parent: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) checkAncestry(ctx context.Context, tx *sqlx.Tx, library string, id, parentID int64) error {
	seen := map[int64]bool{}
	for cur := &parentID; cur != nil; {
		if *cur == id {
			return domain.NewCycleError(id, parentID)
		}
		if seen[*cur] {
			// a loop already stored that does not include id
			return nil
		}
		seen[*cur] = true
		doc, err := getDocument(ctx, tx, s.sb, library, *cur)
		if err != nil {
			return err
		}
		cur = doc.ParentID
	}
	return nil
}

// UpsertImported creates or refreshes the root document imported from
// doc.SourcePath. Title and content are replaced; position is kept.
func (s *SQLStore) UpsertImported(ctx context.Context, doc *models.Document) (bool, error) {
	if doc.SourcePath == nil || *doc.SourcePath == "" {
		return false, domain.Invalid("imported document needs a source path")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.sb.Select("id").From("documents").
		Where(sq.Eq{"library": doc.Library, "source_path": *doc.SourcePath}).
		ToSql()
	if err != nil {
		return false, err
	}
	var id int64
	err = tx.GetContext(ctx, &id, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.insertDocument(ctx, tx, doc); err != nil {
			return false, err
		}
		return true, tx.Commit()
	case err != nil:
		return false, fmt.Errorf("find imported document: %w", err)
	}

	doc.ID = id
	doc.UpdatedAt = time.Now().UTC()
	query, args, err = s.sb.Update("documents").
		Set("title", doc.Title).
		Set("content", doc.Content).
		Set("updated_at", doc.UpdatedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("update imported document: %w", err)
	}
	return false, tx.Commit()
}

// ClearSource unlinks documents imported from sourcePath. The documents stay.
func (s *SQLStore) ClearSource(ctx context.Context, library, sourcePath string) error {
	query, args, err := s.sb.Update("documents").
		Set("source_path", nil).
		Where(sq.Eq{"library": library, "source_path": sourcePath}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// CountDocuments returns the total number of documents.
func (s *SQLStore) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM documents`)
	return count, err
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 = unique_violation
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
