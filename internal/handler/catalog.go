package handler

import (
	"log/slog"
	"net/http"

	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
	"github.com/ahkjxy/family-points-bank-sub000/internal/catalog"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

type CatalogHandler struct {
	manager *catalog.Manager
	logger  *slog.Logger
}

func NewCatalogHandler(m *catalog.Manager, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{manager: m, logger: logger}
}

// ListTasks handles GET /api/tasks
func (h *CatalogHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.manager.ListTasks(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// CreateTask handles POST /api/tasks
func (h *CatalogHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var in catalog.TaskInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx := r.Context()
	t, err := h.manager.CreateTask(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), in)
	if err != nil {
		writeError(w, h.logger, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// UpdateTask handles PUT /api/tasks/{id}
func (h *CatalogHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var in catalog.TaskInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx := r.Context()
	t, err := h.manager.UpdateTask(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id"), in)
	if err != nil {
		writeError(w, h.logger, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTask handles DELETE /api/tasks/{id}
func (h *CatalogHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.manager.DeleteTask(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRewards handles GET /api/rewards
func (h *CatalogHandler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.manager.ListRewards(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list rewards", err)
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

// CreateReward handles POST /api/rewards
func (h *CatalogHandler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var in catalog.RewardInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx := r.Context()
	rw, err := h.manager.CreateReward(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), in)
	if err != nil {
		writeError(w, h.logger, "create reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, rw)
}

// UpdateReward handles PUT /api/rewards/{id}
func (h *CatalogHandler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	var in catalog.RewardInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx := r.Context()
	rw, err := h.manager.UpdateReward(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id"), in)
	if err != nil {
		writeError(w, h.logger, "update reward", err)
		return
	}
	writeJSON(w, http.StatusOK, rw)
}

// DeleteReward handles DELETE /api/rewards/{id}
func (h *CatalogHandler) DeleteReward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.manager.DeleteReward(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "delete reward", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestReward handles POST /api/wishlist
func (h *CatalogHandler) RequestReward(w http.ResponseWriter, r *http.Request) {
	var in catalog.RewardInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx := r.Context()
	rw, err := h.manager.RequestReward(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), in)
	if err != nil {
		writeError(w, h.logger, "request reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, rw)
}

// ApproveReward handles POST /api/wishlist/{id}/approve
func (h *CatalogHandler) ApproveReward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rw, err := h.manager.ApproveReward(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "approve reward", err)
		return
	}
	writeJSON(w, http.StatusOK, rw)
}

// RejectReward handles POST /api/wishlist/{id}/reject
func (h *CatalogHandler) RejectReward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rw, err := h.manager.RejectReward(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "reject reward", err)
		return
	}
	writeJSON(w, http.StatusOK, rw)
}
