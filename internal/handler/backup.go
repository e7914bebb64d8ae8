package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
	"github.com/ahkjxy/family-points-bank-sub000/internal/backup"
	"github.com/ahkjxy/family-points-bank-sub000/internal/family"
)

// BackupHandler exposes encrypted snapshot archives to family admins.
type BackupHandler struct {
	archiver *backup.Archiver
	dir      *family.Directory
	logger   *slog.Logger
}

func NewBackupHandler(a *backup.Archiver, dir *family.Directory, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{archiver: a, dir: dir, logger: logger}
}

func (h *BackupHandler) fail(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, backup.ErrNotConfigured) {
		writeMessage(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	writeError(w, h.logger, msg, err)
}

func (h *BackupHandler) admin(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	fid := auth.FamilyID(ctx)
	if err := h.dir.RequireAdmin(ctx, fid, auth.MemberID(ctx)); err != nil {
		writeError(w, h.logger, "check admin", err)
		return "", false
	}
	return fid, true
}

// List handles GET /api/backups
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	fid, ok := h.admin(w, r)
	if !ok {
		return
	}
	keys, err := h.archiver.List(r.Context(), fid)
	if err != nil {
		h.fail(w, "list backups", err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

type backupRequest struct {
	Key        string `json:"key"`
	Passphrase string `json:"passphrase"`
}

// Create handles POST /api/backups
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	fid, ok := h.admin(w, r)
	if !ok {
		return
	}
	var req backupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key, err := h.archiver.Archive(r.Context(), fid, req.Passphrase)
	if err != nil {
		h.fail(w, "archive family", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

// Restore handles POST /api/backups/restore. An empty key restores the
// newest archive.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	fid, ok := h.admin(w, r)
	if !ok {
		return
	}
	var req backupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	if _, err := h.archiver.Restore(ctx, fid, req.Key, req.Passphrase); err != nil {
		h.fail(w, "restore family", err)
		return
	}
	state, err := h.dir.Load(ctx, fid)
	if err != nil {
		writeError(w, h.logger, "load family", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
