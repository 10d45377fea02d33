// Package client talks to the document service over its REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/pkg/utils"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is read.
const maxErrorBody = 64 << 10

// Client is a REST client for one document service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets a logger for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = utils.OrNop(l) }
}

// New returns a client for the service at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListLibraries returns every library. Library.ID() is its path.
func (c *Client) ListLibraries(ctx context.Context) ([]models.Library, error) {
	var out models.LibraryListResponse
	if err := c.do(ctx, "fetch libraries", http.MethodGet, "/api/library/list", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Libraries, nil
}

// CreateLibrary creates a library named name under basePath.
func (c *Client) CreateLibrary(ctx context.Context, name, basePath string) (models.Library, error) {
	req := models.CreateLibraryRequest{Name: name, BasePath: basePath}
	var out models.Library
	if err := c.doJSON(ctx, "create library", "/api/library/create", nil, req, &out); err != nil {
		return models.Library{}, err
	}
	if out.Name == "" {
		out.Name = name
	}
	return out, nil
}

// GetTree returns the flat document list of library.
func (c *Client) GetTree(ctx context.Context, library string) ([]models.Document, error) {
	var out []models.Document
	if err := c.do(ctx, "fetch document tree", http.MethodGet, "/api/document/tree", libraryQuery(library), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDocument returns one document with its full content.
func (c *Client) GetDocument(ctx context.Context, library string, id int64) (*models.Document, error) {
	q := libraryQuery(library)
	q.Set("id", strconv.FormatInt(id, 10))
	var out models.Document
	if err := c.do(ctx, "fetch document", http.MethodGet, "/api/document", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDocument creates a document and returns its server-assigned id.
func (c *Client) CreateDocument(ctx context.Context, library string, req models.CreateDocumentRequest) (int64, error) {
	var out models.CreateDocumentResponse
	if err := c.doJSON(ctx, "create document", "/api/document/create", libraryQuery(library), req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UpdateDocument changes title and/or content. The returned document is nil
// when the service answers without a body.
func (c *Client) UpdateDocument(ctx context.Context, library string, req models.UpdateDocumentRequest) (*models.Document, error) {
	var out *models.Document
	if err := c.doJSON(ctx, "update document", "/api/document/update", libraryQuery(library), req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateParent moves document id under parentID, or to the root when nil.
func (c *Client) UpdateParent(ctx context.Context, library string, id int64, parentID *int64) error {
	req := models.UpdateParentRequest{ID: id, ParentID: parentID}
	return c.doJSON(ctx, "update document parent", "/api/document/update-parent", libraryQuery(library), req, nil)
}

// UploadImage sends r as the multipart "file" field for document docID.
func (c *Client) UploadImage(ctx context.Context, library string, docID int64, filename string, r io.Reader) (models.UploadResponse, error) {
	const verb = "upload image"
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return models.UploadResponse{}, fmt.Errorf("%s failed: %w", verb, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return models.UploadResponse{}, fmt.Errorf("%s failed: read %s: %w", verb, filename, err)
	}
	if err := mw.Close(); err != nil {
		return models.UploadResponse{}, fmt.Errorf("%s failed: %w", verb, err)
	}
	var out models.UploadResponse
	path := "/api/upload/" + strconv.FormatInt(docID, 10)
	if err := c.send(ctx, verb, http.MethodPost, path, libraryQuery(library), &buf, mw.FormDataContentType(), &out); err != nil {
		return models.UploadResponse{}, err
	}
	return out, nil
}

// Search runs a keyword search inside library.
func (c *Client) Search(ctx context.Context, library, query string, limit int) (*models.SearchResponse, error) {
	q := libraryQuery(library)
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out models.SearchResponse
	if err := c.do(ctx, "search documents", http.MethodGet, "/api/document/search", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns counts and storage details of the service.
func (c *Client) Status(ctx context.Context) (*models.StatusResponse, error) {
	var out models.StatusResponse
	if err := c.do(ctx, "fetch status", http.MethodGet, "/api/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the service is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "check health", http.MethodGet, "/health", nil, nil, nil)
}

func libraryQuery(library string) url.Values {
	return url.Values{"library": {library}}
}

func (c *Client) doJSON(ctx context.Context, verb, path string, q url.Values, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s failed: encode request: %w", verb, err)
	}
	return c.send(ctx, verb, http.MethodPost, path, q, bytes.NewReader(body), "application/json", out)
}

func (c *Client) do(ctx context.Context, verb, method, path string, q url.Values, body io.Reader, out any) error {
	return c.send(ctx, verb, method, path, q, body, "", out)
}

// send performs one request. A nil out discards the response body.
func (c *Client) send(ctx context.Context, verb, method, path string, q url.Values, body io.Reader, contentType string, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s failed: %w", verb, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("verb", verb), zap.String("url", u), zap.Error(err))
		return fmt.Errorf("%s failed: %w", verb, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("request done",
		zap.String("verb", verb),
		zap.String("method", method),
		zap.String("url", u),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(verb, resp, b)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s failed: read response: %w", verb, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s failed: decode response: %w", verb, err)
	}
	return nil
}
