package handler

import (
	"log/slog"
	"net/http"

	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/ahkjxy/family-points-bank-sub000/internal/push"
	"github.com/ahkjxy/family-points-bank-sub000/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeMessage(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}

	ctx := r.Context()
	sub, err := h.pushStore.Subscribe(ctx, auth.AccountID(ctx), auth.FamilyID(ctx),
		req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		writeError(w, h.logger, "save subscription", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.pushStore.Delete(ctx, auth.FamilyID(ctx), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "delete subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByFamily(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list subscriptions", err)
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}
