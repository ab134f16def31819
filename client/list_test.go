package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tripchat/module/chat/model"
)

func convView(id string, other model.User, updatedAt int64) *model.ConversationView {
	return &model.ConversationView{
		Conversation: model.Conversation{
			ConversationID: id,
			ParticipantIDs: []string{testUser.UserID, other.UserID},
			UpdatedAt:      updatedAt,
		},
		Participants: []model.User{testUser, other},
	}
}

func TestListLoadSortsByActivity(t *testing.T) {
	views := []*model.ConversationView{
		convView("c-old", testAdmin, 100),
		convView("c-new", model.User{UserID: "P1", Role: model.RoleProvider}, 300),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": views})
	}))
	defer srv.Close()

	l := NewListController(testUser, NewRest(srv.URL, "tok"))
	if err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := l.Visible()
	if len(got) != 2 || got[0].ConversationID != "c-new" {
		t.Fatalf("order = %v", ids(got))
	}
}

func TestListFilterByRole(t *testing.T) {
	l := NewListController(testUser, nil)
	l.all = []*model.ConversationView{
		convView("c-admin", testAdmin, 200),
		convView("c-provider", model.User{UserID: "P1", Role: model.RoleProvider}, 100),
	}

	l.FilterByRole(model.RoleProvider)
	if got := l.Visible(); len(got) != 1 || got[0].ConversationID != "c-provider" {
		t.Fatalf("filtered = %v", ids(got))
	}

	l.FilterByRole("")
	if got := l.Visible(); len(got) != 2 {
		t.Fatalf("unfiltered = %v", ids(got))
	}
}

func TestListTouchResortsAndFlagsUnread(t *testing.T) {
	l := NewListController(testUser, nil)
	l.all = []*model.ConversationView{
		convView("c-a", testAdmin, 200),
		convView("c-b", model.User{UserID: "P1", Role: model.RoleProvider}, 100),
	}

	l.Touch(&model.MessageView{
		Message: model.Message{MessageID: "m1", ConversationID: "c-b", SenderID: "P1", Content: "ping", CreatedAt: 500},
		Sender:  model.User{UserID: "P1"},
	}, "c-a") // some other conversation is open

	got := l.Visible()
	if got[0].ConversationID != "c-b" {
		t.Fatalf("touched conversation not first: %v", ids(got))
	}
	if !got[0].IsUnread {
		t.Fatal("inactive touched conversation must be unread")
	}
	if got[0].LastMessage == nil || got[0].LastMessage.MessageID != "m1" {
		t.Fatalf("preview not updated: %+v", got[0].LastMessage)
	}

	l.ClearUnread("c-b")
	if l.Find("c-b").IsUnread {
		t.Fatal("clearUnread had no effect")
	}
}

func TestListTouchActiveConversationStaysRead(t *testing.T) {
	l := NewListController(testUser, nil)
	l.all = []*model.ConversationView{convView("c-a", testAdmin, 200)}

	l.Touch(&model.MessageView{
		Message: model.Message{MessageID: "m1", ConversationID: "c-a", SenderID: "A1", Content: "hi", CreatedAt: 500},
		Sender:  testAdmin,
	}, "c-a")

	if l.Find("c-a").IsUnread {
		t.Fatal("active conversation must not be flagged unread")
	}
}

func TestListTouchUnknownConversationGrowsEntry(t *testing.T) {
	l := NewListController(testUser, nil)

	l.Touch(&model.MessageView{
		Message: model.Message{MessageID: "m1", ConversationID: "c-x", SenderID: "A1", Content: "hello", CreatedAt: 500},
		Sender:  testAdmin,
	}, "")

	v := l.Find("c-x")
	if v == nil || !v.IsUnread || len(v.Participants) != 2 {
		t.Fatalf("entry not grown from broadcast: %+v", v)
	}

	// own echo for an unknown conversation is ignored
	l.Touch(&model.MessageView{
		Message: model.Message{MessageID: "m2", ConversationID: "c-y", SenderID: testUser.UserID, Content: "mine", CreatedAt: 600},
		Sender:  testUser,
	}, "")
	if l.Find("c-y") != nil {
		t.Fatal("own message must not grow a sidebar entry")
	}
}

func ids(views []*model.ConversationView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.ConversationID)
	}
	return out
}
