// Package handler implements the JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body into v and answers 400 when it cannot.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be omitted.
// An empty body leaves v untouched, whatever Content-Length says.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	}
	switch ledger.KindOf(err) {
	case ledger.ErrNotFound:
		return http.StatusNotFound
	case ledger.ErrForbidden, ledger.ErrInvariantViolation:
		return http.StatusForbidden
	case ledger.ErrInsufficientBalance:
		return http.StatusUnprocessableEntity
	case ledger.ErrConflict, ledger.ErrDuplicate:
		return http.StatusConflict
	case ledger.ErrTransientIO:
		return http.StatusServiceUnavailable
	case ledger.ErrInvalid:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError answers with the status for err. Unclassified errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error(msg, "error", err)
		writeMessage(w, status, "failed to "+msg)
		return
	case http.StatusUnauthorized:
		writeMessage(w, status, err.Error())
		return
	case http.StatusServiceUnavailable:
		logger.Warn(msg, "error", err)
	}
	writeMessage(w, status, ledger.Message(err))
}

func parseLimit(r *http.Request, def, max int) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

const maxSnapshotBytes = 32 << 20

func decodeSnapshot(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSnapshotBytes)).Decode(v)
}
