package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/heritage-site/pkg/pastevent"
)

// multipartOverhead leaves room for form boundaries around the file part
const multipartOverhead = 64 << 10

// UploadHandler serves admin image uploads and their public reads
type UploadHandler struct {
	uploader *pastevent.ImageUploader
	gate     pastevent.CredentialGate
	writeMW  []Middleware
}

// NewUploadHandler creates a new upload handler. writeMW wraps the admin
// routes after the credential check.
func NewUploadHandler(uploader *pastevent.ImageUploader, gate pastevent.CredentialGate, writeMW ...Middleware) *UploadHandler {
	return &UploadHandler{uploader: uploader, gate: gate, writeMW: writeMW}
}

// AdminRoutes returns the gated routes, mounted under /api/uploads
func (h *UploadHandler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireCredential(h.gate))
	for _, mw := range h.writeMW {
		r.Use(mw)
	}

	r.Post("/images", h.UploadImage)
	r.Delete("/images/{filename}", h.DeleteImage)

	return r
}

// PublicRoutes returns the image read route, mounted under /uploads
func (h *UploadHandler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{filename}", h.ServeImage)
	return r
}

// UploadImage stores the multipart field "file"
func (h *UploadHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, pastevent.MaxImageSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, pastevent.ErrImageTooLarge)
			return
		}
		writeError(w, r, badRequest("file", "is required"))
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, _ := io.ReadFull(file, sniff)
		mimeType = http.DetectContentType(sniff[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			writeError(w, r, err)
			return
		}
	}

	uploaded, err := h.uploader.Upload(r.Context(), header.Filename, mimeType, file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if identity, ok := pastevent.IdentityFromContext(r.Context()); ok {
		slog.Info("Image stored", "filename", uploaded.Filename, "user_id", identity.UserID.String())
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, uploaded)
}

// DeleteImage removes an uploaded image
func (h *UploadHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := h.uploader.Delete(r.Context(), chi.URLParam(r, "filename")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeImage streams an image, or redirects to a presigned URL when the blob
// store supports one.
func (h *UploadHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	url, ok, err := h.uploader.PresignedURL(r.Context(), filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ok {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, meta, err := h.uploader.Open(r.Context(), filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := meta.ContentType
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	// Keys are unique per upload, so the bytes behind a URL never change.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("Failed to stream image", "filename", filename, "error", err)
	}
}
