package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"parley/pkg/convo"
	"parley/pkg/directory"
	"parley/pkg/notify"
	"parley/pkg/store"
	"parley/pkg/utils"
)

type adminAPI struct {
	csvc *convo.Service
	nsvc *notify.Service
}

// RegisterAdmin registers the admin console routes. The router passed in
// must already be guarded by the admin role check.
func RegisterAdmin(r *mux.Router, csvc *convo.Service, nsvc *notify.Service) {
	h := &adminAPI{csvc: csvc, nsvc: nsvc}
	r.HandleFunc("/broadcast", h.broadcast).Methods(http.MethodPost)
	r.HandleFunc("/conversations", h.purge).Methods(http.MethodDelete)
	r.HandleFunc("/notifications", h.pushNotification).Methods(http.MethodPost)
	r.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/keys", h.listKeys).Methods(http.MethodGet)
	r.HandleFunc("/keys/{key}", h.getKey).Methods(http.MethodGet)
}

func (h *adminAPI) broadcast(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	res, err := h.csvc.Broadcast(body.Title, body.Message)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, res)
}

func (h *adminAPI) purge(w http.ResponseWriter, r *http.Request) {
	if err := h.csvc.PurgeAll(); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pushNotification lets backend jobs raise a notification for a user
// (profile change, password reset and the like).
func (h *adminAPI) pushNotification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  string `json:"user_id"`
		Title   string `json:"title"`
		Message string `json:"message"`
		Icon    string `json:"icon"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if body.UserID == "" {
		utils.JSONError(w, http.StatusBadRequest, "user_id required")
		return
	}
	n, err := h.nsvc.Push(body.UserID, body.Title, body.Message, body.Icon)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, n)
}

func (h *adminAPI) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.csvc.Stats()
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, st)
}

func (h *adminAPI) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := store.ListKeys(r.URL.Query().Get("prefix"))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

func (h *adminAPI) getKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	v, err := store.GetKey(key)
	if err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "key not found")
			return
		}
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(v))
}

// RegisterUsers exposes the read-only user directory for participant
// pickers.
func RegisterUsers(r *mux.Router, dir directory.Directory) {
	r.HandleFunc("/users", func(w http.ResponseWriter, req *http.Request) {
		_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"users": dir.List()})
	}).Methods(http.MethodGet)
}
