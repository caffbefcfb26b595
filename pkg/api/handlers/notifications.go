package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"parley/pkg/auth"
	"parley/pkg/convo"
	"parley/pkg/notify"
	"parley/pkg/utils"
)

type notificationAPI struct {
	svc *notify.Service
}

// RegisterNotifications registers the notification routes.
func RegisterNotifications(r *mux.Router, svc *notify.Service) {
	h := &notificationAPI{svc: svc}
	r.HandleFunc("/notifications", h.list).Methods(http.MethodGet)
	r.HandleFunc("/notifications/read", h.markAllRead).Methods(http.MethodPut)
	r.HandleFunc("/notifications/{id}/read", h.markOneRead).Methods(http.MethodPut)
}

func (h *notificationAPI) list(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	ns, err := h.svc.List(uid)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"notifications": ns})
}

func (h *notificationAPI) markAllRead(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	if err := h.svc.MarkAllRead(uid); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *notificationAPI) markOneRead(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	if err := h.svc.MarkOneRead(uid, mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterAccount registers the account-level unread flags route. It
// needs both services, so it lives outside the two per-store APIs.
func RegisterAccount(r *mux.Router, csvc *convo.Service, nsvc *notify.Service) {
	r.HandleFunc("/me/unread", func(w http.ResponseWriter, req *http.Request) {
		uid, code, msg := auth.ResolveUserFromRequest(req)
		if code != 0 {
			utils.JSONError(w, code, msg)
			return
		}
		convs, err := csvc.HasAnyUnread(uid)
		if err != nil {
			writeErr(w, err)
			return
		}
		notifs, err := nsvc.HasAnyUnread(uid)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{
			"unread_messages":      convs,
			"unread_notifications": notifs,
		})
	}).Methods(http.MethodGet)
}
