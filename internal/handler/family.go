package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
	"github.com/ahkjxy/family-points-bank-sub000/internal/family"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/ahkjxy/family-points-bank-sub000/internal/report"
)

type FamilyHandler struct {
	dir      *family.Directory
	sessions *auth.Provider
	logger   *slog.Logger
	now      func() time.Time
}

func NewFamilyHandler(dir *family.Directory, sessions *auth.Provider, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{dir: dir, sessions: sessions, logger: logger, now: time.Now}
}

// Load handles GET /api/family. The session's member wins over the family's
// stored current member when it still exists.
func (h *FamilyHandler) Load(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := h.dir.Load(ctx, auth.FamilyID(ctx))
	if err != nil {
		writeError(w, h.logger, "load family", err)
		return
	}
	if mid := auth.MemberID(ctx); mid != "" {
		state.CurrentMemberID = family.EnsureCurrentMemberID(state.Members, mid)
	}
	writeJSON(w, http.StatusOK, state)
}

// Rename handles PUT /api/family
func (h *FamilyHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	f, err := h.dir.Rename(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), req.Name)
	if err != nil {
		writeError(w, h.logger, "rename family", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// SetCurrentMember handles POST /api/family/current-member
func (h *FamilyHandler) SetCurrentMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID string `json:"member_id"`
		PIN      string `json:"pin"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	m, err := h.dir.SetCurrentMember(ctx, auth.FamilyID(ctx), req.MemberID, req.PIN)
	if err != nil {
		writeError(w, h.logger, "switch member", err)
		return
	}
	ac, _ := auth.FromContext(ctx)
	if err := h.sessions.SelectMember(ctx, ac, m.ID); err != nil {
		writeError(w, h.logger, "switch member", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CreateMember handles POST /api/members
func (h *FamilyHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var in family.MemberInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx := r.Context()
	m, err := h.dir.CreateMember(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), in)
	if err != nil {
		writeError(w, h.logger, "create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMember handles PUT /api/members/{id}
func (h *FamilyHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	m, err := h.dir.UpdateMember(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id"), req.Name, req.AvatarURL)
	if err != nil {
		writeError(w, h.logger, "update member", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMember handles DELETE /api/members/{id}
func (h *FamilyHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.dir.DeleteMember(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "delete member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeRole handles PUT /api/members/{id}/role
func (h *FamilyHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role model.Role `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	m, err := h.dir.ChangeRole(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id"), req.Role)
	if err != nil {
		writeError(w, h.logger, "change role", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Reorder handles PUT /api/members/sort
func (h *FamilyHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := h.dir.ReorderMembers(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), req.IDs); err != nil {
		writeError(w, h.logger, "reorder members", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPIN handles POST /api/members/{id}/pin
func (h *FamilyHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := h.dir.SetPIN(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id"), req.PIN); err != nil {
		writeError(w, h.logger, "set pin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearPIN handles DELETE /api/members/{id}/pin
func (h *FamilyHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.dir.ClearPIN(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "clear pin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /api/family/export
func (h *FamilyHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.dir.Export(ctx, auth.FamilyID(ctx))
	if err != nil {
		writeError(w, h.logger, "export family", err)
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="family-%s.json"`, h.now().UTC().Format("20060102-150405")))
	writeJSON(w, http.StatusOK, snap)
}

// Import handles POST /api/family/import. Only admins may replace the family,
// and a snapshot is always imported into the caller's own family.
func (h *FamilyHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fid := auth.FamilyID(ctx)
	if err := h.dir.RequireAdmin(ctx, fid, auth.MemberID(ctx)); err != nil {
		writeError(w, h.logger, "import family", err)
		return
	}

	var snap model.Snapshot
	if err := decodeSnapshot(w, r, &snap); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid snapshot JSON")
		return
	}
	if snap.Family.ID != "" && snap.Family.ID != fid {
		writeMessage(w, http.StatusForbidden, "snapshot belongs to another family")
		return
	}
	snap.Family.ID = fid
	for i := range snap.Members {
		snap.Members[i].FamilyID = fid
	}
	for i := range snap.Tasks {
		snap.Tasks[i].FamilyID = fid
	}
	for i := range snap.Rewards {
		snap.Rewards[i].FamilyID = fid
	}
	for i := range snap.Transactions {
		snap.Transactions[i].FamilyID = fid
	}

	if err := h.dir.Import(ctx, snap); err != nil {
		writeError(w, h.logger, "import family", err)
		return
	}
	state, err := h.dir.Load(ctx, fid)
	if err != nil {
		writeError(w, h.logger, "load family", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Report handles GET /api/family/report
func (h *FamilyHandler) Report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.dir.Export(ctx, auth.FamilyID(ctx))
	if err != nil {
		writeError(w, h.logger, "export family", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.Render(w, *snap, h.now()); err != nil {
		h.logger.Error("render report", "family_id", snap.Family.ID, "error", err)
	}
}
