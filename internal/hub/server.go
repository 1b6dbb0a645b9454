package hub

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/websocket"

	"consultd/internal/auth"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // daemon binds loopback only; origin is not the auth boundary
}

// UpgradeHandler returns an http.HandlerFunc that authenticates the
// handshake against token (the same shared daemon token REST uses, per
// §6), infers the client Kind from ?kind=, upgrades the connection, and
// runs its read loop until disconnect.
func (h *Hub) UpgradeHandler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := auth.ExtractToken(r)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		kind := ClientKind(r.URL.Query().Get("kind"))
		switch kind {
		case KindProxy, KindWebUI:
		default:
			kind = KindUnknown
		}

		client := h.Register(conn, kind)
		h.ReadLoop(client)
	}
}
