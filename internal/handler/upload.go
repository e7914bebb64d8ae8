package handler

import (
	"bufio"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
	"github.com/ahkjxy/family-points-bank-sub000/internal/objectstore"
)

type UploadHandler struct {
	uploader objectstore.Uploader
	logger   *slog.Logger
	now      func() time.Time
}

func NewUploadHandler(u objectstore.Uploader, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploader: u, logger: logger, now: time.Now}
}

// Upload handles POST /api/uploads. The multipart field "file" must hold an
// image of at most objectstore.MaxImageSize bytes; the response carries its URL.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, objectstore.MaxImageSize+64<<10)
	if err := r.ParseMultipartForm(objectstore.MaxImageSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "image must be 5 MiB or smaller")
			return
		}
		writeMessage(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > objectstore.MaxImageSize {
		writeMessage(w, http.StatusRequestEntityTooLarge, "image must be 5 MiB or smaller")
		return
	}

	br := bufio.NewReaderSize(file, 512)
	contentType := header.Header.Get("Content-Type")
	ext := objectstore.Extension(contentType)
	if ext == "" {
		head, _ := br.Peek(512)
		contentType = http.DetectContentType(head)
		ext = objectstore.Extension(contentType)
	}
	if ext == "" {
		writeMessage(w, http.StatusUnsupportedMediaType, "only image uploads are accepted")
		return
	}

	ctx := r.Context()
	key := objectstore.ImageKey(auth.FamilyID(ctx), ext, h.now())
	url, err := h.uploader.Upload(ctx, key, contentType, br)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotConfigured) {
			writeMessage(w, http.StatusServiceUnavailable, "image uploads are not configured")
			return
		}
		h.logger.Error("upload image", "key", key, "error", err)
		writeMessage(w, http.StatusBadGateway, "failed to store image")
		return
	}

	h.logger.Info("image uploaded", "key", key, "bytes", header.Size)
	writeJSON(w, http.StatusCreated, map[string]string{"url": url, "key": key})
}
