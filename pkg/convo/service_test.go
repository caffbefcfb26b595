package convo

import (
	"strings"
	"sync"
	"testing"

	"parley/pkg/apperr"
	"parley/pkg/broker"
	"parley/pkg/config"
	"parley/pkg/directory"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/store"
)

type recorder struct {
	mu     sync.Mutex
	events []broker.Event
}

func (r *recorder) TrySend(ev broker.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) named(name string) []broker.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []broker.Event
	for _, ev := range r.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *broker.Broker) {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	dir := directory.NewStatic([]config.DirectoryUser{
		{ID: "alice", Username: "alice"},
		{ID: "bob", Username: "bob"},
		{ID: "carol", Username: "carol"},
	})
	b := broker.New()
	return New(b, dir), b
}

func TestCreateConversationMemberships(t *testing.T) {
	svc, _ := newTestService(t)
	conv, err := svc.Create("alice", []string{"bob"}, "hi")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(conv.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %v", conv.Participants)
	}
	a, err := store.GetMembership("alice", conv.ID)
	if err != nil || a.Unread {
		t.Fatalf("creator must start read: %+v %v", a, err)
	}
	if a.LastReadTS == 0 {
		t.Fatalf("creator lastReadAt must be set")
	}
	b, err := store.GetMembership("bob", conv.ID)
	if err != nil || !b.Unread {
		t.Fatalf("other participant must start unread: %+v %v", b, err)
	}
}

func TestCreateDedupesCreator(t *testing.T) {
	svc, _ := newTestService(t)
	conv, err := svc.Create("alice", []string{"alice", "bob"}, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(conv.Participants) != 2 {
		t.Fatalf("creator duplicated: %v", conv.Participants)
	}
}

func TestCreateEmptyParticipantsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create("alice", nil, "")
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAppendOrderAndCount(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "")
	texts := []string{"one", "two", "three", "four"}
	for _, txt := range texts {
		if _, err := svc.Append("alice", conv.ID, txt, ""); err != nil {
			t.Fatalf("append %q: %v", txt, err)
		}
	}
	_, msgs, err := svc.Get("alice", conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(msgs) != len(texts) {
		t.Fatalf("expected %d messages, got %d", len(texts), len(msgs))
	}
	for i, txt := range texts {
		if msgs[i].Text != txt {
			t.Fatalf("order broken at %d: %q", i, msgs[i].Text)
		}
	}
}

func TestAppendNonParticipantForbidden(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "")
	_, err := svc.Append("carol", conv.ID, "intruding", "")
	if !apperr.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, msgs, _ := svc.Get("alice", conv.ID)
	if len(msgs) != 0 {
		t.Fatalf("forbidden append mutated the sequence")
	}
}

func TestAppendMissingConversationNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Append("alice", "conv-ghost", "hello", "")
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestReplyRequiresExistingParent(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "")
	root, err := svc.Append("alice", conv.ID, "root", "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	reply, err := svc.Reply("bob", conv.ID, root.ID, "child")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ParentID != root.ID {
		t.Fatalf("parent not recorded: %+v", reply)
	}
	if _, err := svc.Reply("bob", conv.ID, "msg-ghost", "orphan"); !apperr.IsNotFound(err) {
		t.Fatalf("expected not-found for missing parent, got %v", err)
	}
}

func TestDeleteMessageAuthorOnly(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "")
	m1, _ := svc.Append("alice", conv.ID, "mine", "")
	m2, _ := svc.Append("bob", conv.ID, "yours", "")

	if err := svc.DeleteMessage("alice", conv.ID, m2.ID); !apperr.IsForbidden(err) {
		t.Fatalf("expected forbidden deleting another author's message, got %v", err)
	}
	if err := svc.DeleteMessage("alice", conv.ID, m1.ID); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	_, msgs, _ := svc.Get("alice", conv.ID)
	if len(msgs) != 1 || msgs[0].ID != m2.ID {
		t.Fatalf("expected only m2 to remain: %+v", msgs)
	}
}

func TestDeleteKeepsDanglingReplies(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "")
	root, _ := svc.Append("alice", conv.ID, "root", "")
	reply, _ := svc.Reply("bob", conv.ID, root.ID, "child")
	if err := svc.DeleteMessage("alice", conv.ID, root.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, msgs, _ := svc.Get("alice", conv.ID)
	if len(msgs) != 1 || msgs[0].ID != reply.ID || msgs[0].ParentID != root.ID {
		t.Fatalf("dangling reply not preserved: %+v", msgs)
	}
}

func TestMarkReadAfterUnread(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "")
	if _, err := svc.Append("alice", conv.ID, "ping", ""); err != nil {
		t.Fatalf("append: %v", err)
	}
	m, _ := store.GetMembership("bob", conv.ID)
	if !m.Unread {
		t.Fatalf("bob should be unread after alice's message")
	}
	before := m.LastReadTS
	if err := svc.MarkRead("bob", conv.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	m, _ = store.GetMembership("bob", conv.ID)
	if m.Unread {
		t.Fatalf("unread not cleared")
	}
	if m.LastReadTS <= before {
		t.Fatalf("lastReadAt not advanced: %d <= %d", m.LastReadTS, before)
	}
}

func TestLeaveLastParticipantDeletes(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "")
	if err := svc.Leave("bob", conv.ID); err != nil {
		t.Fatalf("bob leave: %v", err)
	}
	if err := svc.Leave("alice", conv.ID); err != nil {
		t.Fatalf("alice leave: %v", err)
	}
	for _, uid := range []string{"alice", "bob"} {
		sums, err := svc.ListForUser(uid)
		if err != nil {
			t.Fatalf("list %s: %v", uid, err)
		}
		if len(sums) != 0 {
			t.Fatalf("conversation still listed for %s", uid)
		}
	}
	if _, err := store.GetConversation(conv.ID); !store.IsNotFound(err) {
		t.Fatalf("conversation record survived: %v", err)
	}
}

func TestAddParticipantsIgnoresExisting(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "")
	updated, err := svc.AddParticipants("alice", conv.ID, []string{"bob", "carol"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(updated.Participants) != 3 {
		t.Fatalf("expected 3 participants, got %v", updated.Participants)
	}
	m, err := store.GetMembership("carol", conv.ID)
	if err != nil || !m.Unread {
		t.Fatalf("new member must start unread: %+v %v", m, err)
	}
}

func TestAddParticipantMarksExistingUnread(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "hi")
	if err := svc.MarkRead("bob", conv.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if _, err := svc.AddParticipants("alice", conv.ID, []string{"carol"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	m, err := store.GetMembership("bob", conv.ID)
	if err != nil {
		t.Fatalf("bob membership: %v", err)
	}
	if !m.Unread {
		t.Fatalf("membership change must mark existing participants unread")
	}
	if m.LastReadTS == 0 {
		t.Fatalf("lastReadAt wiped by membership change")
	}
	a, _ := store.GetMembership("alice", conv.ID)
	if a.Unread {
		t.Fatalf("the actor must stay read")
	}
	c, err := store.GetMembership("carol", conv.ID)
	if err != nil || !c.Unread {
		t.Fatalf("new member must start unread: %+v %v", c, err)
	}
}

func TestCreateDedupesRepeatedIDs(t *testing.T) {
	svc, _ := newTestService(t)
	conv, err := svc.Create("alice", []string{"bob", "bob"}, "")
	if err != nil {
		t.Fatalf("create with repeated id: %v", err)
	}
	if len(conv.Participants) != 2 {
		t.Fatalf("repeated id not deduped: %v", conv.Participants)
	}
	updated, err := svc.AddParticipants("alice", conv.ID, []string{"carol", "carol"})
	if err != nil {
		t.Fatalf("add with repeated id: %v", err)
	}
	if len(updated.Participants) != 3 {
		t.Fatalf("repeated id added twice: %v", updated.Participants)
	}
}

func TestDerivedDisplayName(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "")
	sums, err := svc.ListForUser("alice")
	if err != nil || len(sums) != 1 {
		t.Fatalf("list: %v %d", err, len(sums))
	}
	if sums[0].DisplayName != "alice, bob" {
		t.Fatalf("derived name mismatch: %q", sums[0].DisplayName)
	}
	if err := svc.Rename("alice", conv.ID, "pair"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	sums, _ = svc.ListForUser("alice")
	if sums[0].DisplayName != "pair" {
		t.Fatalf("explicit name not used: %q", sums[0].DisplayName)
	}
	if err := svc.Rename("alice", conv.ID, ""); err != nil {
		t.Fatalf("clear name: %v", err)
	}
	sums, _ = svc.ListForUser("alice")
	if sums[0].DisplayName != "alice, bob" {
		t.Fatalf("cleared name must fall back: %q", sums[0].DisplayName)
	}
}

func TestConversationScenario(t *testing.T) {
	svc, _ := newTestService(t)
	conv, err := svc.Create("alice", []string{"bob"}, "hi")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sums, _ := svc.ListForUser("bob")
	if len(sums) != 1 || !sums[0].Unread || sums[0].LastMessage != "hi" {
		t.Fatalf("bob's first view wrong: %+v", sums)
	}
	if err := svc.MarkRead("bob", conv.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	sums, _ = svc.ListForUser("bob")
	if sums[0].Unread {
		t.Fatalf("bob should be read after mark-read")
	}
	if _, err := svc.Append("alice", conv.ID, "you there?", ""); err != nil {
		t.Fatalf("append: %v", err)
	}
	sums, _ = svc.ListForUser("bob")
	if !sums[0].Unread || sums[0].LastMessage != "you there?" {
		t.Fatalf("bob's view after second message wrong: %+v", sums[0])
	}
	_, msgs, _ := svc.Get("bob", conv.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestGetAccessControl(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "")
	if _, _, err := svc.Get("carol", conv.ID); !apperr.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, _, err := svc.Get("alice", "conv-ghost"); !apperr.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestEventsFanOut(t *testing.T) {
	svc, b := newTestService(t)
	aliceConn, bobConn := &recorder{}, &recorder{}
	b.Register("alice", aliceConn)
	b.Register("bob", bobConn)

	conv, _ := svc.Create("alice", []string{"bob"}, "")
	if len(bobConn.named(broker.EventConversationNew)) != 1 {
		t.Fatalf("bob expected conversation:new")
	}
	if len(aliceConn.named(broker.EventConversationNew)) != 0 {
		t.Fatalf("creator must not receive conversation:new")
	}

	msg, _ := svc.Append("alice", conv.ID, "hello", "")
	if len(aliceConn.named(broker.EventMessageNew)) != 1 || len(bobConn.named(broker.EventMessageNew)) != 1 {
		t.Fatalf("message:new must reach sender and recipient")
	}
	got := bobConn.named(broker.EventMessageNew)[0].Data.(models.MessageNewEvent)
	if got.Message.ID != msg.ID || got.Message.SenderUsername != "alice" {
		t.Fatalf("payload mismatch: %+v", got)
	}

	_ = svc.DeleteMessage("alice", conv.ID, msg.ID)
	if len(bobConn.named(broker.EventMessageDeleted)) != 1 {
		t.Fatalf("message:deleted missing")
	}

	_ = svc.Leave("bob", conv.ID)
	upd := bobConn.named(broker.EventConversationUpdate)
	if len(upd) == 0 {
		t.Fatalf("removed user expected conversation:update")
	}
	last := upd[len(upd)-1].Data.(models.ConversationUpdateEvent)
	if !last.Update.Deleted {
		t.Fatalf("removed user expected deleted marker: %+v", last)
	}
}

func TestBroadcastFanOutAndAppend(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Broadcast("maintenance", "going down at noon")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.SuccessCount != 3 || res.ErrorCount != 0 {
		t.Fatalf("expected 3 successes, got %+v", res)
	}
	// every user got exactly one system conversation with one message
	for _, uid := range []string{"alice", "bob", "carol"} {
		sums, err := svc.ListForUser(uid)
		if err != nil || len(sums) != 1 {
			t.Fatalf("%s system conversations: %v %d", uid, err, len(sums))
		}
		if !sums[0].Unread || sums[0].LastMessage != "going down at noon" {
			t.Fatalf("%s summary wrong: %+v", uid, sums[0])
		}
	}
	// second broadcast with the same title appends instead of duplicating
	if _, err := svc.Broadcast("maintenance", "back up"); err != nil {
		t.Fatalf("second broadcast: %v", err)
	}
	sums, _ := svc.ListForUser("alice")
	if len(sums) != 1 {
		t.Fatalf("broadcast duplicated the conversation: %d", len(sums))
	}
	_, msgs, err := svc.Get("alice", sums[0].ID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected 2 broadcast messages: %v %d", err, len(msgs))
	}
}

func TestBroadcastPreservesReadTimestamp(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Broadcast("maintenance", "down at noon"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	sums, err := svc.ListForUser("alice")
	if err != nil || len(sums) != 1 {
		t.Fatalf("list: %v %d", err, len(sums))
	}
	convID := sums[0].ID
	if err := svc.MarkRead("alice", convID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	m, _ := store.GetMembership("alice", convID)
	readAt := m.LastReadTS
	if readAt == 0 {
		t.Fatalf("lastReadAt not set by mark-read")
	}
	if _, err := svc.Broadcast("maintenance", "back up"); err != nil {
		t.Fatalf("second broadcast: %v", err)
	}
	m, _ = store.GetMembership("alice", convID)
	if !m.Unread {
		t.Fatalf("second broadcast must mark unread")
	}
	if m.LastReadTS != readAt {
		t.Fatalf("second broadcast reset lastReadAt: %d != %d", m.LastReadTS, readAt)
	}
}

func TestBroadcastCountsFailedRecipients(t *testing.T) {
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	dir := directory.NewStatic([]config.DirectoryUser{
		{ID: "alice", Username: "alice"},
		{ID: "bob", Username: "bob"},
		{ID: strings.Repeat("x", 200), Username: "broken"},
	})
	svc := New(broker.New(), dir)

	res, err := svc.Broadcast("maintenance", "down at noon")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.SuccessCount != 2 || res.ErrorCount != 1 {
		t.Fatalf("expected 2 ok / 1 failed, got %+v", res)
	}
	// the failing recipient must not poison the others
	for _, uid := range []string{"alice", "bob"} {
		sums, err := svc.ListForUser(uid)
		if err != nil || len(sums) != 1 {
			t.Fatalf("%s conversations: %v %d", uid, err, len(sums))
		}
		_, msgs, err := svc.Get(uid, sums[0].ID)
		if err != nil || len(msgs) != 1 {
			t.Fatalf("%s expected exactly one message: %v %d", uid, err, len(msgs))
		}
	}
}

func TestPurgeAll(t *testing.T) {
	svc, _ := newTestService(t)
	_, _ = svc.Create("alice", []string{"bob"}, "hi")
	_, _ = svc.Create("bob", []string{"carol"}, "yo")
	if err := svc.PurgeAll(); err != nil {
		t.Fatalf("purge: %v", err)
	}
	for _, uid := range []string{"alice", "bob", "carol"} {
		sums, err := svc.ListForUser(uid)
		if err != nil {
			t.Fatalf("list %s: %v", uid, err)
		}
		if len(sums) != 0 {
			t.Fatalf("%s still sees conversations after purge", uid)
		}
	}
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.Create("alice", []string{"bob"}, "hi")
	_, _ = svc.Append("bob", conv.ID, "hey", "")
	st, err := svc.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Conversations != 1 || st.Messages != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.KnownUsers != 4 { // alice, bob, carol, system
		t.Fatalf("expected 4 known users, got %d", st.KnownUsers)
	}
}
