// Package api assembles the versioned HTTP surface. Route registration
// lives in pkg/api/handlers; this file only wires the subrouters and the
// identity middleware together.
package api

import (
	"github.com/gorilla/mux"

	"parley/pkg/api/handlers"
	"parley/pkg/auth"
	"parley/pkg/broker"
	"parley/pkg/convo"
	"parley/pkg/directory"
	"parley/pkg/notify"
	"parley/pkg/ws"
)

// Deps carries everything the surface needs, injected at startup.
type Deps struct {
	Conversations  *convo.Service
	Notifications  *notify.Service
	Broker         *broker.Broker
	Directory      directory.Directory
	AllowedOrigins []string
}

// Register mounts the /v1 API onto the given root router.
func Register(root *mux.Router, d Deps) {
	v1 := root.PathPrefix("/v1").Subrouter()
	v1.Use(auth.RequireSignedUser)

	handlers.RegisterConversations(v1, d.Conversations)
	handlers.RegisterNotifications(v1, d.Notifications)
	handlers.RegisterAccount(v1, d.Conversations, d.Notifications)
	handlers.RegisterUsers(v1, d.Directory)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(auth.RequireAdmin)
	handlers.RegisterAdmin(admin, d.Conversations, d.Notifications)

	// The socket handshake verifies identity itself after mirroring the
	// query params browsers use in place of headers, so it sits outside
	// the identity middleware.
	sock := root.PathPrefix("/v1").Subrouter()
	ws.RegisterSocket(sock, d.Broker, d.AllowedOrigins)
}
