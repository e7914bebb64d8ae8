package handler

import (
	"log/slog"
	"net/http"

	"github.com/ahkjxy/family-points-bank-sub000/internal/action"
	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type LedgerHandler struct {
	resolver *action.Resolver
	logger   *slog.Logger
}

func NewLedgerHandler(r *action.Resolver, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{resolver: r, logger: logger}
}

// Balance handles GET /api/members/{id}/balance
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	balance, err := h.resolver.Balance(ctx, auth.FamilyID(ctx), id)
	if err != nil {
		writeError(w, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member_id": id, "balance": balance})
}

// History handles GET /api/members/{id}/transactions?limit=N
func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	ctx := r.Context()
	txs, err := h.resolver.History(ctx, auth.FamilyID(ctx), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, h.logger, "get history", err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

type memberRef struct {
	MemberID string `json:"member_id"`
}

// Earn handles POST /api/tasks/{id}/earn
func (h *LedgerHandler) Earn(w http.ResponseWriter, r *http.Request) {
	var req memberRef
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	res, err := h.resolver.Earn(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), req.MemberID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "earn", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Penalize handles POST /api/tasks/{id}/penalty
func (h *LedgerHandler) Penalize(w http.ResponseWriter, r *http.Request) {
	var req memberRef
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	res, err := h.resolver.Penalize(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), req.MemberID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "penalty", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Redeem handles POST /api/rewards/{id}/redeem
func (h *LedgerHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req memberRef
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	res, err := h.resolver.Redeem(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), req.MemberID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "redeem", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Transfer handles POST /api/transfers
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req action.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	res, err := h.resolver.Transfer(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), req)
	if err != nil {
		writeError(w, h.logger, "transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Adjust handles POST /api/members/{id}/adjustments
func (h *LedgerHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int    `json:"points"`
		Memo   string `json:"memo"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	res, err := h.resolver.Adjust(ctx, auth.FamilyID(ctx), auth.MemberID(ctx), r.PathValue("id"), req.Points, req.Memo)
	if err != nil {
		writeError(w, h.logger, "adjust", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GrantDaily handles POST /api/daily-grant. An empty body or member list
// grants every member.
func (h *LedgerHandler) GrantDaily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberIDs []string `json:"member_ids"`
	}
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	res, err := h.resolver.GrantDaily(ctx, auth.FamilyID(ctx), req.MemberIDs)
	if err != nil {
		writeError(w, h.logger, "grant daily", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
