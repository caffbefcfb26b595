package ws

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"parley/pkg/auth"
	"parley/pkg/broker"
	"parley/pkg/logger"
	"parley/pkg/utils"
)

// RegisterSocket mounts the websocket handshake endpoint. The gateway has
// already authenticated the API key; identity comes from the same signed
// headers the HTTP surface uses, passed as query params by browser
// clients that cannot set headers on the handshake.
func RegisterSocket(r *mux.Router, b *broker.Broker, allowedOrigins []string) {
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			if origin == "" {
				// non-browser client
				return true
			}
			for _, a := range allowedOrigins {
				if a == "*" || strings.EqualFold(a, origin) {
					return true
				}
			}
			return false
		},
	}

	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		// browsers cannot set custom headers on the handshake, so mirror
		// the identity params into headers before resolving
		if req.Header.Get("X-User-ID") == "" {
			if v := req.URL.Query().Get("user"); v != "" {
				req.Header.Set("X-User-ID", v)
			}
		}
		if req.Header.Get("X-User-Signature") == "" {
			if v := req.URL.Query().Get("sig"); v != "" {
				req.Header.Set("X-User-Signature", v)
			}
		}

		var uid string
		done := make(chan struct{})
		auth.RequireSignedUser(http.HandlerFunc(func(_ http.ResponseWriter, r2 *http.Request) {
			uid = auth.UserIDFromContext(r2.Context())
			close(done)
		})).ServeHTTP(w, req)
		select {
		case <-done:
		default:
			// identity middleware already wrote the error response
			return
		}
		if uid == "" {
			// backend callers may attach for any user id they name
			uid = strings.TrimSpace(req.Header.Get("X-User-ID"))
		}
		if uid == "" {
			utils.JSONError(w, http.StatusUnauthorized, "user identity required")
			return
		}

		conn, err := up.Upgrade(w, req, nil)
		if err != nil {
			logger.Warn("ws_upgrade_failed", "user", uid, "error", err)
			return
		}
		logger.Info("ws_connected", "user", uid, "remote", req.RemoteAddr)
		go newSession(uid, conn, b).run()
	}).Methods(http.MethodGet)
}
