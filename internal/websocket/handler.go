package websocket

import (
	"log/slog"
	"net/http"

	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades an authenticated request and streams the
// family's change feed to it until the connection closes.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		familyID := auth.FamilyID(r.Context())
		if familyID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("websocket accept", "family_id", familyID, "error", err)
			return
		}

		NewClient(hub, conn, familyID).Run(r.Context())
	}
}
