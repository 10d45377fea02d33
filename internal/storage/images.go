package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kurin/blazer/b2"

	"github.com/hyperjump/quire/internal/domain"
	"github.com/hyperjump/quire/pkg/utils"
)

// ImageStore keeps uploaded images per library.
type ImageStore interface {
	Put(ctx context.Context, library, name string, r io.Reader) error
	Get(ctx context.Context, library, name string) (io.ReadCloser, error)
}

// SignedURLer is implemented by stores that can hand out temporary direct links.
type SignedURLer interface {
	SignedURL(ctx context.Context, library, name string, ttl time.Duration) (*url.URL, error)
}

// NewImageName returns a fresh stored name keeping the lower-cased extension of original.
func NewImageName(original string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(original))
}

func checkImageName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return domain.Invalid("invalid image name %q", name)
	}
	return nil
}

// DiskImages stores images in the images/ folder of each library directory.
type DiskImages struct{}

// ImagesDir returns the image folder of a library directory.
func ImagesDir(library string) string {
	return filepath.Join(library, "images")
}

// Put writes r to <library>/images/<name>.
func (DiskImages) Put(_ context.Context, library, name string, r io.Reader) error {
	if err := checkImageName(name); err != nil {
		return err
	}
	dir := ImagesDir(library)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), filepath.Join(dir, name))
}

// Get opens a stored image.
func (DiskImages) Get(_ context.Context, library, name string) (io.ReadCloser, error) {
	if err := checkImageName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(ImagesDir(library), name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.NotFound("image", name)
	}
	return f, err
}

// B2Images stores images in a Backblaze B2 bucket under
// libraries/<library slug>/<name>.
type B2Images struct {
	bucket *b2.Bucket
}

// NewB2Images connects to B2 and opens bucketName.
func NewB2Images(ctx context.Context, keyID, applicationKey, bucketName string) (*B2Images, error) {
	client, err := b2.NewClient(ctx, keyID, applicationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create B2 client: %w", err)
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", bucketName, err)
	}
	return &B2Images{bucket: bucket}, nil
}

// ObjectName is the bucket key of an image.
func ObjectName(library, name string) string {
	return path.Join("libraries", utils.Slugify(library), name)
}

// Put streams r into the bucket.
func (s *B2Images) Put(ctx context.Context, library, name string, r io.Reader) error {
	if err := checkImageName(name); err != nil {
		return err
	}
	w := s.bucket.Object(ObjectName(library, name)).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload image to B2: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close B2 writer: %w", err)
	}
	return nil
}

// Get opens a reader on a stored object.
func (s *B2Images) Get(ctx context.Context, library, name string) (io.ReadCloser, error) {
	if err := checkImageName(name); err != nil {
		return nil, err
	}
	obj := s.bucket.Object(ObjectName(library, name))
	if _, err := obj.Attrs(ctx); err != nil {
		if b2.IsNotExist(err) {
			return nil, domain.NotFound("image", name)
		}
		return nil, fmt.Errorf("failed to stat B2 object: %w", err)
	}
	return obj.NewReader(ctx), nil
}

// SignedURL returns a link to the object valid for ttl.
func (s *B2Images) SignedURL(ctx context.Context, library, name string, ttl time.Duration) (*url.URL, error) {
	if err := checkImageName(name); err != nil {
		return nil, err
	}
	u, err := s.bucket.Object(ObjectName(library, name)).AuthURL(ctx, ttl, "inline")
	if err != nil {
		return nil, fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return u, nil
}
