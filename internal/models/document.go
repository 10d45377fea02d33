// Package models defines the wire and storage types for libraries and documents.
package models

import "time"

// Document is one node of a library's hierarchy as it travels over the wire.
// ParentID is nil for root documents.
type Document struct {
	ID         int64     `json:"id" db:"id"`
	Library    string    `json:"-" db:"library"`
	Title      string    `json:"title" db:"title"`
	Content    string    `json:"content" db:"content"`
	ParentID   *int64    `json:"parent_id" db:"parent_id"`
	SourcePath *string   `json:"source_path,omitempty" db:"source_path"`
	CreatedAt  time.Time `json:"created_at,omitzero" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at,omitzero" db:"updated_at"`
}

// IsRoot reports whether d has no parent.
func (d *Document) IsRoot() bool {
	return d.ParentID == nil
}

// CreateDocumentRequest is the body of POST /api/document/create.
type CreateDocumentRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id"`
}

// CreateDocumentResponse carries the server-assigned id.
type CreateDocumentResponse struct {
	ID int64 `json:"id"`
}

// UpdateDocumentRequest is the body of POST /api/document/update.
// Nil fields are left unchanged.
type UpdateDocumentRequest struct {
	ID      int64   `json:"id"`
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// UpdateParentRequest is the body of POST /api/document/update-parent.
// A nil ParentID moves the document to the root collection.
type UpdateParentRequest struct {
	ID       int64  `json:"id"`
	ParentID *int64 `json:"parent_id"`
}

// UploadResponse is returned by POST /api/upload/{id}.
type UploadResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url,omitempty"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// String returns a pointer to v.
func String(v string) *string {
	return &v
}

// SameParent reports whether two optional parent ids are equal.
func SameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
