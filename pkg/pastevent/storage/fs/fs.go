package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tendant/heritage-site/pkg/pastevent"
)

// Backend is a filesystem implementation of the pastevent.BlobStore interface.
// Keys are flat file names inside BaseDir.
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

func (b *Backend) path(key string) (string, error) {
	if key == "" || filepath.Base(key) != key {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.baseDir, key), nil
}

// Upload writes the object to a temporary file and renames it into place
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader, params pastevent.UploadParams) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.baseDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}
	return nil
}

// Download opens a stored file
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, *pastevent.ObjectMeta, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, nil, pastevent.ErrImageNotFound
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to get file info: %w", err)
	}

	meta := &pastevent.ObjectMeta{
		Key:         key,
		Size:        info.Size(),
		ContentType: detectContentType(file, key),
		UpdatedAt:   info.ModTime(),
	}
	return file, meta, nil
}

// Delete removes a stored file
func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return pastevent.ErrImageNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// detectContentType prefers the extension and falls back to sniffing.
func detectContentType(file *os.File, key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}

	buffer := make([]byte, 512)
	n, _ := file.Read(buffer)
	if _, err := file.Seek(0, io.SeekStart); err != nil || n == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(buffer[:n])
}
