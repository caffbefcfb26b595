package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"parley/pkg/auth"
	"parley/pkg/convo"
	"parley/pkg/telemetry"
	"parley/pkg/utils"
)

// conversationAPI binds the conversation routes to an injected service.
type conversationAPI struct {
	svc *convo.Service
}

// RegisterConversations registers all conversation HTTP routes on the
// provided router.
func RegisterConversations(r *mux.Router, svc *convo.Service) {
	h := &conversationAPI{svc: svc}

	// Collection routes
	r.HandleFunc("/conversations", h.list).Methods(http.MethodGet)
	r.HandleFunc("/conversations", h.create).Methods(http.MethodPost)

	// Single resource routes
	r.HandleFunc("/conversations/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/read", h.markRead).Methods(http.MethodPut)
	r.HandleFunc("/conversations/{id}/name", h.rename).Methods(http.MethodPut)
	r.HandleFunc("/conversations/{id}/leave", h.leave).Methods(http.MethodPost)

	// Membership
	r.HandleFunc("/conversations/{id}/participants", h.addParticipants).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/participants/{uid}", h.removeParticipant).Methods(http.MethodDelete)

	// Messages
	r.HandleFunc("/conversations/{id}/messages", h.send).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages/{msgID}/replies", h.reply).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages/{msgID}", h.deleteMessage).Methods(http.MethodDelete)
}

func (h *conversationAPI) list(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	sums, err := h.svc.ListForUser(uid)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"conversations": sums})
}

func (h *conversationAPI) create(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	var body struct {
		Participants []string `json:"participants"`
		Message      string   `json:"message"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	conv, err := h.svc.Create(uid, body.Participants, body.Message)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, conv)
}

func (h *conversationAPI) get(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	conv, msgs, err := h.svc.Get(uid, mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"messages":     msgs,
	})
}

func (h *conversationAPI) send(w http.ResponseWriter, r *http.Request) {
	telemetry.SetRequestOp(r.Context(), "send_message")
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	var body struct {
		Message  string `json:"message"`
		ParentID string `json:"parent_message_id"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	m, err := h.svc.Append(uid, mux.Vars(r)["id"], body.Message, body.ParentID)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func (h *conversationAPI) reply(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	vars := mux.Vars(r)
	m, err := h.svc.Reply(uid, vars["id"], vars["msgID"], body.Message)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func (h *conversationAPI) deleteMessage(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	vars := mux.Vars(r)
	if err := h.svc.DeleteMessage(uid, vars["id"], vars["msgID"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *conversationAPI) markRead(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	if err := h.svc.MarkRead(uid, mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *conversationAPI) rename(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.svc.Rename(uid, mux.Vars(r)["id"], body.Name); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *conversationAPI) addParticipants(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	var body struct {
		ParticipantIDs []string `json:"participant_ids"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	conv, err := h.svc.AddParticipants(uid, mux.Vars(r)["id"], body.ParticipantIDs)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, conv)
}

func (h *conversationAPI) removeParticipant(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	vars := mux.Vars(r)
	if err := h.svc.RemoveParticipant(uid, vars["id"], vars["uid"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *conversationAPI) leave(w http.ResponseWriter, r *http.Request) {
	uid, code, msg := auth.ResolveUserFromRequest(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	if err := h.svc.Leave(uid, mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
