package models

// Library is a named collection of documents. Path is its unique, path-like identifier.
type Library struct {
	Name string `json:"name" db:"name"`
	Path string `json:"path" db:"path"`
}

// ID returns the identifier used in ?library= parameters and share links.
func (l Library) ID() string {
	if l.Path != "" {
		return l.Path
	}
	return l.Name
}

// LibraryListResponse is the body of GET /api/library/list.
type LibraryListResponse struct {
	Libraries []Library `json:"libraries"`
}

// CreateLibraryRequest is the body of POST /api/library/create.
type CreateLibraryRequest struct {
	Name     string `json:"name"`
	BasePath string `json:"base_path"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Libraries      int      `json:"libraries"`
	Documents      int64    `json:"documents"`
	IndexedDocs    uint64   `json:"indexed_documents"`
	DiskUsageBytes int64    `json:"disk_usage_bytes,omitempty"`
	StorageDriver  string   `json:"storage_driver"`
	ImagesBackend  string   `json:"images_backend"`
	Watched        []string `json:"watched,omitempty"`
}
