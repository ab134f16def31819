package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tripchat/module/chat/model"
	"tripchat/tools/errs"
)

// fakeTransport records every emitted frame and lets the test inject
// server-to-client broadcasts.
type fakeTransport struct {
	mu    sync.Mutex
	sent  [][]byte
	inbox chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan []byte, 16)}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	data, ok := <-f.inbox
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeTransport) Close() error {
	close(f.inbox)
	return nil
}

// deliver injects one broadcast as the gateway would send it.
func (f *fakeTransport) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := model.BuildFrame(event, payload)
	if err != nil {
		t.Fatal(err)
	}
	f.inbox <- raw
}

func (f *fakeTransport) sentFrames(t *testing.T) []*model.Frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Frame, 0, len(f.sent))
	for _, raw := range f.sent {
		fr, err := model.ParseFrame(raw)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, fr)
	}
	return out
}

func (f *fakeTransport) countSent(t *testing.T, event string) int {
	n := 0
	for _, fr := range f.sentFrames(t) {
		if fr.Type == event {
			n++
		}
	}
	return n
}

// fixture is a minimal stand-in for the REST side.
type fixture struct {
	history []*model.MessageView
	created *model.ConversationView
}

func (fx *fixture) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeData := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
	}
	mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeData(w, fx.created)
			return
		}
		writeData(w, []*model.ConversationView{})
	})
	mux.HandleFunc("/messages/", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, fx.history)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var (
	testAdmin = model.User{UserID: "A1", Role: model.RoleAdmin, Name: "Support"}
	testUser  = model.User{UserID: "U1", Role: model.RoleUser, Name: "Uma"}
)

func newTestSession(t *testing.T, viewer model.User, fx *fixture) (*Session, *fakeTransport, *ListController) {
	t.Helper()
	srv := fx.server(t)
	rest := NewRest(srv.URL, "test-token")

	tr := newFakeTransport()
	conn := NewConnection("ws://unused/chat", "test-token")
	conn.Dial = func(context.Context, string, string) (Transport, error) { return tr, nil }

	list := NewListController(viewer, rest)
	sess := NewSession(viewer, rest, conn, list)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return sess, tr, list
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func activeConv(id string) *model.ConversationView {
	return &model.ConversationView{
		Conversation: model.Conversation{ConversationID: id, ParticipantIDs: []string{"A1", "U1"}},
		Participants: []model.User{testAdmin, testUser},
	}
}

func TestSelectConversationLoadsHistoryAndJoins(t *testing.T) {
	history := []*model.MessageView{{
		Message: model.Message{MessageID: "m1", ConversationID: "c1", SenderID: "A1", Content: "hello", ReadBy: []string{"A1"}, CreatedAt: 100},
		Sender:  testAdmin,
	}}
	sess, tr, _ := newTestSession(t, testUser, &fixture{history: history})

	if err := sess.SelectConversation(context.Background(), activeConv("c1")); err != nil {
		t.Fatal(err)
	}
	if sess.State() != StateActive {
		t.Fatalf("state = %v, want active", sess.State())
	}

	msgs := sess.Messages()
	if len(msgs) != 1 || msgs[0].MessageID != "m1" {
		t.Fatalf("messages = %+v", msgs)
	}
	// the emitted seen-receipt is mirrored locally
	if !msgs[0].ReadByUser("U1") {
		t.Fatalf("viewer not unioned into readBy: %v", msgs[0].ReadBy)
	}

	frames := tr.sentFrames(t)
	if len(frames) != 2 || frames[0].Type != model.EventJoinConversation || frames[1].Type != model.EventMessagesSeen {
		t.Fatalf("emitted %+v, want join then seen", frames)
	}
}

func TestSelectPlaceholderPromotesIt(t *testing.T) {
	real := activeConv("c-real")
	sess, _, list := newTestSession(t, testAdmin, &fixture{created: real})

	placeholder := &model.ConversationView{
		Conversation: model.Conversation{ParticipantIDs: []string{"A1", "U1"}},
		Participants: []model.User{testAdmin, testUser},
		IsNew:        true,
	}
	list.Replace("U1", placeholder) // seed the sidebar with the placeholder

	if err := sess.SelectConversation(context.Background(), placeholder); err != nil {
		t.Fatal(err)
	}
	if sess.Active().ConversationID != "c-real" {
		t.Fatalf("active = %+v, want promoted conversation", sess.Active())
	}
	if got := list.Find("c-real"); got == nil || got.IsNew {
		t.Fatalf("placeholder not replaced in list: %+v", got)
	}
}

func TestSelectPlaceholderRequiresInitiateCapability(t *testing.T) {
	sess, _, _ := newTestSession(t, testUser, &fixture{})

	err := sess.SelectConversation(context.Background(), &model.ConversationView{
		Conversation: model.Conversation{ParticipantIDs: []string{"U1", "A1"}},
		IsNew:        true,
	})
	ce, ok := errs.CodeOf(err)
	if !ok || ce.Code != errs.NoPermission {
		t.Fatalf("err = %v, want NoPermission", err)
	}
}

func TestOptimisticSendReconciledByClientToken(t *testing.T) {
	sess, tr, _ := newTestSession(t, testUser, &fixture{})
	if err := sess.SelectConversation(context.Background(), activeConv("c1")); err != nil {
		t.Fatal(err)
	}

	token, err := sess.SendMessage("Hello")
	if err != nil {
		t.Fatal(err)
	}

	msgs := sess.Messages()
	if len(msgs) != 1 || !msgs[0].IsTemp() || msgs[0].ClientMsgID != token {
		t.Fatalf("optimistic message wrong: %+v", msgs[0])
	}

	// server echo with the authoritative id and the token echoed back
	tr.deliver(t, model.EventReceiveMessage, model.MessageView{
		Message: model.Message{MessageID: "m_456", ConversationID: "c1", SenderID: "U1", ClientMsgID: token, Content: "Hello", ReadBy: []string{"U1"}, CreatedAt: 200},
		Sender:  testUser,
	})

	waitFor(t, func() bool {
		msgs := sess.Messages()
		return len(msgs) == 1 && msgs[0].MessageID == "m_456"
	})
	for _, m := range sess.Messages() {
		if m.IsTemp() {
			t.Fatalf("temp message survived reconciliation: %+v", m)
		}
	}
	// own echo never triggers a seen-receipt
	if n := tr.countSent(t, model.EventMessagesSeen); n != 1 {
		t.Fatalf("seen receipts = %d, want only the one from select", n)
	}
}

func TestIncomingMessageAppendsAndAcks(t *testing.T) {
	sess, tr, list := newTestSession(t, testUser, &fixture{})
	if err := sess.SelectConversation(context.Background(), activeConv("c1")); err != nil {
		t.Fatal(err)
	}
	list.Replace("A1", activeConv("c1"))

	tr.deliver(t, model.EventReceiveMessage, model.MessageView{
		Message: model.Message{MessageID: "m2", ConversationID: "c1", SenderID: "A1", Content: "hi there", ReadBy: []string{"A1"}, CreatedAt: 300},
		Sender:  testAdmin,
	})

	waitFor(t, func() bool { return len(sess.Messages()) == 1 })
	waitFor(t, func() bool { return tr.countSent(t, model.EventMessagesSeen) == 2 })

	// active conversation: appended but not flagged unread in the sidebar
	if v := list.Find("c1"); v == nil || v.IsUnread || v.LastMessage == nil || v.LastMessage.MessageID != "m2" {
		t.Fatalf("sidebar entry wrong: %+v", v)
	}
}

func TestMessageForOtherConversationOnlyTouchesSidebar(t *testing.T) {
	sess, tr, list := newTestSession(t, testUser, &fixture{})
	if err := sess.SelectConversation(context.Background(), activeConv("c1")); err != nil {
		t.Fatal(err)
	}

	tr.deliver(t, model.EventReceiveMessage, model.MessageView{
		Message: model.Message{MessageID: "m9", ConversationID: "c-other", SenderID: "A1", Content: "elsewhere", ReadBy: []string{"A1"}, CreatedAt: 400},
		Sender:  testAdmin,
	})

	waitFor(t, func() bool { return list.Find("c-other") != nil })
	if len(sess.Messages()) != 0 {
		t.Fatal("message for another conversation leaked into the open thread")
	}
	if v := list.Find("c-other"); !v.IsUnread {
		t.Fatal("inactive conversation must be flagged unread")
	}
	// no ack for a conversation we are not viewing
	if n := tr.countSent(t, model.EventMessagesSeen); n != 1 {
		t.Fatalf("seen receipts = %d, want 1", n)
	}
}

func TestSeenBroadcastUnionsReadBy(t *testing.T) {
	history := []*model.MessageView{{
		Message: model.Message{MessageID: "m1", ConversationID: "c1", SenderID: "U1", Content: "hello", ReadBy: []string{"U1"}, CreatedAt: 100},
		Sender:  testUser,
	}}
	sess, tr, _ := newTestSession(t, testUser, &fixture{history: history})
	if err := sess.SelectConversation(context.Background(), activeConv("c1")); err != nil {
		t.Fatal(err)
	}

	tr.deliver(t, model.EventUpdateSeenStatus, model.SeenStatus{ConversationID: "c1", ViewerID: "A1"})

	waitFor(t, func() bool {
		msgs := sess.Messages()
		return len(msgs) == 1 && msgs[0].ReadByUser("A1")
	})
}

func TestSendTimeoutMarksFailedAndRetryResends(t *testing.T) {
	sess, tr, _ := newTestSession(t, testUser, &fixture{})
	if err := sess.SelectConversation(context.Background(), activeConv("c1")); err != nil {
		t.Fatal(err)
	}
	sess.SetSendTimeout(20 * time.Millisecond)

	token, err := sess.SendMessage("are you there")
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		msgs := sess.Messages()
		return len(msgs) == 1 && msgs[0].Failed
	})

	if err := sess.Retry(token); err != nil {
		t.Fatal(err)
	}
	if sess.Messages()[0].Failed {
		t.Fatal("retry must clear the failed marker")
	}
	if n := tr.countSent(t, model.EventSendMessage); n != 2 {
		t.Fatalf("send emitted %d times, want 2", n)
	}

	// the late echo still resolves the retried message
	tr.deliver(t, model.EventReceiveMessage, model.MessageView{
		Message: model.Message{MessageID: "m_late", ConversationID: "c1", SenderID: "U1", ClientMsgID: token, Content: "are you there", ReadBy: []string{"U1"}, CreatedAt: 500},
		Sender:  testUser,
	})
	waitFor(t, func() bool {
		msgs := sess.Messages()
		return len(msgs) == 1 && msgs[0].MessageID == "m_late" && !msgs[0].Failed
	})
}

func TestSendMessageValidation(t *testing.T) {
	sess, _, _ := newTestSession(t, testUser, &fixture{})

	if _, err := sess.SendMessage("hi"); err == nil {
		t.Fatal("send without an active conversation must fail")
	}
	if err := sess.SelectConversation(context.Background(), activeConv("c1")); err != nil {
		t.Fatal(err)
	}
	_, err := sess.SendMessage("   ")
	ce, ok := errs.CodeOf(err)
	if !ok || ce.Code != errs.ContentEmpty {
		t.Fatalf("err = %v, want ContentEmpty", err)
	}
}

func TestDeselectReturnsToIdle(t *testing.T) {
	sess, _, _ := newTestSession(t, testUser, &fixture{})
	if err := sess.SelectConversation(context.Background(), activeConv("c1")); err != nil {
		t.Fatal(err)
	}
	sess.Deselect()
	if sess.State() != StateIdle || sess.Active() != nil || len(sess.Messages()) != 0 {
		t.Fatal("deselect must drop all session state")
	}
}
