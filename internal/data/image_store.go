package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrImageNotFound is returned when loading a reference that does not exist.
var ErrImageNotFound = errors.New("image not found")

// ErrInvalidImageRef is returned for references that escape the store
// directory or carry an unknown extension.
var ErrInvalidImageRef = errors.New("invalid image reference")

// maxImageSize caps stored images at 20 MiB.
const maxImageSize = 20 << 20

// imageExtensions maps accepted content types to file extensions. The
// reverse mapping recovers the content type on Load.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// FileImageStore keeps job images on the local filesystem, one file per
// image, named by a random UUID. References are bare filenames so the
// directory can move without invalidating payloads.
type FileImageStore struct {
	dir          string
	timeProvider TimeProvider
}

// NewFileImageStore creates the backing directory if needed.
func NewFileImageStore(dir string) (*FileImageStore, error) {
	return NewFileImageStoreWithTimeProvider(dir, &RealTimeProvider{})
}

// NewFileImageStoreWithTimeProvider creates a FileImageStore with a custom
// time provider (useful for tests).
func NewFileImageStoreWithTimeProvider(dir string, tp TimeProvider) (*FileImageStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("image store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image store directory: %w", err)
	}
	return &FileImageStore{dir: dir, timeProvider: tp}, nil
}

// Dir returns the directory managed by this store.
func (s *FileImageStore) Dir() string {
	return s.dir
}

// Save writes image bytes atomically (temp file then rename) and returns
// the generated reference.
func (s *FileImageStore) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("image data is empty")
	}
	if len(data) > maxImageSize {
		return "", fmt.Errorf("image exceeds maximum size of %d bytes", maxImageSize)
	}
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("unsupported image content type %q", contentType)
	}

	ref := uuid.NewString() + ext

	tmp, err := os.CreateTemp(s.dir, ".img-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp image file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close image file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, ref)); err != nil {
		return "", fmt.Errorf("failed to finalize image file: %w", err)
	}
	tmpName = ""

	return ref, nil
}

// Load reads image bytes and recovers the content type from the extension.
func (s *FileImageStore) Load(ctx context.Context, ref string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	contentType, err := s.refContentType(ref)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrImageNotFound
		}
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	return data, contentType, nil
}

// Delete removes a stored image. Missing references are not an error.
func (s *FileImageStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.refContentType(ref); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// Sweep removes images whose modification time is older than maxAge.
func (s *FileImageStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, errors.New("maxAge must be positive")
	}
	cutoff := s.timeProvider.Now().Add(-maxAge)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read image store directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() {
			continue
		}
		if _, err := s.refContentType(e.Name()); err != nil {
			// Leftover temp files count too, once they age out.
			if !strings.HasSuffix(e.Name(), ".tmp") {
				continue
			}
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to sweep image %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// refContentType validates a reference and returns its content type.
func (s *FileImageStore) refContentType(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", ErrInvalidImageRef
	}
	ext := strings.ToLower(filepath.Ext(ref))
	for contentType, e := range imageExtensions {
		if e == ext {
			return contentType, nil
		}
	}
	return "", ErrInvalidImageRef
}
