package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"parley/pkg/broker"
	"parley/pkg/config"
	"parley/pkg/convo"
	"parley/pkg/directory"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/notify"
	"parley/pkg/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	dir := directory.NewStatic([]config.DirectoryUser{
		{ID: "alice", Username: "alice"},
		{ID: "bob", Username: "bob"},
	})
	b := broker.New()
	root := mux.NewRouter()
	Register(root, Deps{
		Conversations: convo.New(b, dir),
		Notifications: notify.New(b),
		Broker:        b,
		Directory:     dir,
	})
	srv := httptest.NewServer(root)
	t.Cleanup(srv.Close)
	return srv
}

// doAs issues a request with backend-role headers acting as uid.
func doAs(t *testing.T, srv *httptest.Server, method, path, uid string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role-Name", "backend")
	if uid != "" {
		req.Header.Set("X-User-ID", uid)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func doAdmin(t *testing.T, srv *httptest.Server, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, srv.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role-Name", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createConversation(t *testing.T, srv *httptest.Server) models.Conversation {
	t.Helper()
	resp := doAs(t, srv, http.MethodPost, "/v1/conversations", "alice",
		map[string]interface{}{"participants": []string{"bob"}, "message": "hi"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	var conv models.Conversation
	decodeBody(t, resp, &conv)
	return conv
}

func TestConversationLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	conv := createConversation(t, srv)

	// bob sees it unread with the seed message
	resp := doAs(t, srv, http.MethodGet, "/v1/conversations", "bob", nil)
	var list struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	decodeBody(t, resp, &list)
	if len(list.Conversations) != 1 || !list.Conversations[0].Unread || list.Conversations[0].LastMessage != "hi" {
		t.Fatalf("bob list wrong: %+v", list.Conversations)
	}

	// mark read
	resp = doAs(t, srv, http.MethodPut, "/v1/conversations/"+conv.ID+"/read", "bob", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// send a message
	resp = doAs(t, srv, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "bob",
		map[string]string{"message": "hello back"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status %d", resp.StatusCode)
	}
	var sent models.Message
	decodeBody(t, resp, &sent)
	if sent.From != "bob" || sent.Time == "" {
		t.Fatalf("unexpected message: %+v", sent)
	}

	// full view
	resp = doAs(t, srv, http.MethodGet, "/v1/conversations/"+conv.ID, "alice", nil)
	var full struct {
		Conversation models.Conversation `json:"conversation"`
		Messages     []models.Message    `json:"messages"`
	}
	decodeBody(t, resp, &full)
	if len(full.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(full.Messages))
	}
	if full.Messages[1].SenderUsername != "bob" {
		t.Fatalf("sender username missing: %+v", full.Messages[1])
	}
}

func TestErrorEnvelopeMapping(t *testing.T) {
	srv := newTestServer(t)
	conv := createConversation(t, srv)

	cases := []struct {
		name   string
		method string
		path   string
		uid    string
		body   interface{}
		status int
	}{
		{"missing conversation", http.MethodGet, "/v1/conversations/conv-ghost", "alice", nil, http.StatusNotFound},
		{"non participant", http.MethodGet, "/v1/conversations/" + conv.ID, "carol", nil, http.StatusForbidden},
		{"empty message", http.MethodPost, "/v1/conversations/" + conv.ID + "/messages", "alice", map[string]string{"message": ""}, http.StatusBadRequest},
		{"empty participants", http.MethodPost, "/v1/conversations", "alice", map[string]interface{}{"participants": []string{}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := doAs(t, srv, tc.method, tc.path, tc.uid, tc.body)
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: status %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
		var env struct {
			Status  bool   `json:"status"`
			Message string `json:"message"`
		}
		decodeBody(t, resp, &env)
		if env.Status || env.Message == "" {
			t.Fatalf("%s: bad envelope %+v", tc.name, env)
		}
	}
}

func TestDeleteMessageAuthorization(t *testing.T) {
	srv := newTestServer(t)
	conv := createConversation(t, srv)
	resp := doAs(t, srv, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "alice",
		map[string]string{"message": "mine"})
	var m models.Message
	decodeBody(t, resp, &m)

	resp = doAs(t, srv, http.MethodDelete, "/v1/conversations/"+conv.ID+"/messages/"+m.ID, "bob", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-author delete status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doAs(t, srv, http.MethodDelete, "/v1/conversations/"+conv.ID+"/messages/"+m.ID, "alice", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("author delete status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestNotificationRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp := doAdmin(t, srv, http.MethodPost, "/v1/admin/notifications",
		map[string]string{"user_id": "bob", "title": "welcome", "message": "hello", "icon": "mail"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("push status %d", resp.StatusCode)
	}
	var n models.Notification
	decodeBody(t, resp, &n)

	resp = doAs(t, srv, http.MethodGet, "/v1/notifications", "bob", nil)
	var list struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decodeBody(t, resp, &list)
	if len(list.Notifications) != 1 || !list.Notifications[0].Unread {
		t.Fatalf("unexpected notifications: %+v", list.Notifications)
	}

	resp = doAs(t, srv, http.MethodGet, "/v1/me/unread", "bob", nil)
	var flags map[string]bool
	decodeBody(t, resp, &flags)
	if !flags["unread_notifications"] {
		t.Fatalf("account flag not set: %+v", flags)
	}

	resp = doAs(t, srv, http.MethodPut, "/v1/notifications/"+n.ID+"/read", "bob", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark one status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doAs(t, srv, http.MethodPut, "/v1/notifications/read", "bob", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark all status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doAs(t, srv, http.MethodGet, "/v1/me/unread", "bob", nil)
	decodeBody(t, resp, &flags)
	if flags["unread_notifications"] {
		t.Fatalf("account flag still set after mark all")
	}
}

func TestAdminGuardAndBroadcast(t *testing.T) {
	srv := newTestServer(t)

	// non-admin role is rejected at the admin subrouter
	resp := doAs(t, srv, http.MethodPost, "/v1/admin/broadcast", "alice",
		map[string]string{"title": "t", "message": "m"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doAdmin(t, srv, http.MethodPost, "/v1/admin/broadcast",
		map[string]string{"title": "maintenance", "message": "down at noon"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("broadcast status %d", resp.StatusCode)
	}
	var res convo.BroadcastResult
	decodeBody(t, resp, &res)
	if res.SuccessCount != 2 || res.ErrorCount != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	resp = doAdmin(t, srv, http.MethodGet, "/v1/admin/stats", nil)
	var st convo.Stats
	decodeBody(t, resp, &st)
	if st.Conversations != 2 || st.Messages != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	resp = doAdmin(t, srv, http.MethodDelete, "/v1/admin/conversations", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("purge status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doAs(t, srv, http.MethodGet, "/v1/conversations", "alice", nil)
	var list struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	decodeBody(t, resp, &list)
	if len(list.Conversations) != 0 {
		t.Fatalf("conversations survived purge: %+v", list.Conversations)
	}
}
