package pastevent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/heritage-site/pkg/utils"
)

// MaxImageSize is the largest accepted upload, in bytes.
const MaxImageSize = 5 << 20

// UploadURLPrefix is the public path under which uploaded images are served.
const UploadURLPrefix = "/uploads/"

var (
	// ErrUnsupportedImageType indicates a mime type outside the whitelist
	ErrUnsupportedImageType = errors.New("unsupported image type")

	// ErrImageTooLarge indicates an upload above MaxImageSize
	ErrImageTooLarge = errors.New("image too large")

	// ErrInvalidImageKey indicates a key that is empty or not a bare filename
	ErrInvalidImageKey = errors.New("invalid image key")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// UploadedImage describes a stored image.
type UploadedImage struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// ImageUploader stores admin-uploaded images in a BlobStore.
type ImageUploader struct {
	store BlobStore
	now   func() time.Time
}

// NewImageUploader creates an uploader over store.
func NewImageUploader(store BlobStore) (*ImageUploader, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	return &ImageUploader{store: store, now: time.Now}, nil
}

// Upload validates and stores an image. originalName only contributes a
// readable suffix to the generated key.
func (u *ImageUploader) Upload(ctx context.Context, originalName, mimeType string, r io.Reader) (*UploadedImage, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	ext, ok := imageExtensions[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImageType, mimeType)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}

	key := u.newKey(originalName, ext)
	if err := u.store.Upload(ctx, key, bytes.NewReader(data), UploadParams{
		MimeType: mimeType,
		Size:     int64(len(data)),
	}); err != nil {
		return nil, &StorageError{Op: "upload image", Err: err}
	}

	slog.Info("Image uploaded", "key", key, "size", len(data), "mime_type", mimeType)
	return &UploadedImage{
		Filename: key,
		URL:      UploadURLPrefix + key,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}, nil
}

// Open streams a stored image.
func (u *ImageUploader) Open(ctx context.Context, key string) (io.ReadCloser, *ObjectMeta, error) {
	if err := checkImageKey(key); err != nil {
		return nil, nil, err
	}
	rc, meta, err := u.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			return nil, nil, err
		}
		return nil, nil, &StorageError{Op: "open image", Err: err}
	}
	return rc, meta, nil
}

// PresignedURL returns a direct read URL when the store supports it. ok is
// false when images must be streamed through Open.
func (u *ImageUploader) PresignedURL(ctx context.Context, key string) (url string, ok bool, err error) {
	presigner, supported := u.store.(URLPresigner)
	if !supported {
		return "", false, nil
	}
	if err := checkImageKey(key); err != nil {
		return "", false, err
	}
	url, err = presigner.PresignGet(ctx, key)
	if err != nil {
		return "", false, &StorageError{Op: "presign image", Err: err}
	}
	return url, true, nil
}

// Delete removes a stored image.
func (u *ImageUploader) Delete(ctx context.Context, key string) error {
	if err := checkImageKey(key); err != nil {
		return err
	}
	if err := u.store.Delete(ctx, key); err != nil {
		if errors.Is(err, ErrImageNotFound) {
			return err
		}
		return &StorageError{Op: "delete image", Err: err}
	}
	slog.Info("Image deleted", "key", key)
	return nil
}

func (u *ImageUploader) newKey(originalName, ext string) string {
	base := strings.TrimSuffix(path.Base(strings.ReplaceAll(originalName, "\\", "/")), path.Ext(originalName))
	name := strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(utils.ASCIIFold(base)), "-"), "-")
	if name == "" || name == "." {
		name = "image"
	}
	if len(name) > 50 {
		name = strings.TrimRight(name[:50], "-")
	}
	return fmt.Sprintf("%d-%s-%s%s", u.now().UnixMilli(), uuid.NewString(), name, ext)
}

func checkImageKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidImageKey, key)
	}
	return nil
}
