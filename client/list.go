package client

import (
	"context"
	"sort"
	"sync"

	"tripchat/module/chat/model"
)

// ListController keeps the sidebar's conversation list: loaded over REST,
// patched live by realtime events, always sorted by most recent activity.
type ListController struct {
	viewer model.User
	rest   *Rest

	mu   sync.Mutex
	all  []*model.ConversationView
	role string // other-participant role filter, "" shows all
}

func NewListController(viewer model.User, rest *Rest) *ListController {
	return &ListController{viewer: viewer, rest: rest}
}

func (l *ListController) Load(ctx context.Context) error {
	views, err := l.rest.ListConversations(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = views
	l.resortLocked()
	return nil
}

// FilterByRole narrows Visible to conversations whose other participant has
// the given role. Empty role shows everything.
func (l *ListController) FilterByRole(role string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.role = role
}

// Visible returns the filtered, sorted list.
func (l *ListController) Visible() []*model.ConversationView {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*model.ConversationView, 0, len(l.all))
	for _, v := range l.all {
		if l.role != "" && l.otherOf(v).Role != l.role {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Find returns the entry for a conversation id, or nil.
func (l *ListController) Find(conversationID string) *model.ConversationView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.findLocked(conversationID)
}

// Touch applies a broadcast message to the list: bump the entry's preview
// and timestamp, flag unread unless the conversation is the active one, and
// resort. A message for a conversation the list has never seen (other side's
// first contact) grows a new entry from the sender's profile.
func (l *ListController) Touch(m *model.MessageView, activeConversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := l.findLocked(m.ConversationID)
	if v == nil {
		if m.SenderID == l.viewer.UserID {
			return
		}
		v = &model.ConversationView{
			Conversation: model.Conversation{
				ConversationID: m.ConversationID,
				ParticipantIDs: []string{l.viewer.UserID, m.SenderID},
			},
			Participants: []model.User{l.viewer, m.Sender},
		}
		l.all = append(l.all, v)
	}

	mv := *m
	v.LastMessage = &mv
	v.UpdatedAt = m.CreatedAt
	v.LastMessageID = m.MessageID
	v.IsNew = false
	if m.ConversationID != activeConversationID && m.SenderID != l.viewer.UserID {
		v.IsUnread = true
	}
	l.resortLocked()
}

func (l *ListController) ClearUnread(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v := l.findLocked(conversationID); v != nil {
		v.IsUnread = false
	}
}

// Replace swaps the placeholder entry for otherUserID with the real
// conversation returned by the create call.
func (l *ListController) Replace(otherUserID string, real *model.ConversationView) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, v := range l.all {
		if v.IsNew && v.OtherParticipant(l.viewer.UserID) == otherUserID {
			l.all[i] = real
			l.resortLocked()
			return
		}
	}
	l.all = append(l.all, real)
	l.resortLocked()
}

func (l *ListController) findLocked(conversationID string) *model.ConversationView {
	for _, v := range l.all {
		if v.ConversationID == conversationID {
			return v
		}
	}
	return nil
}

func (l *ListController) otherOf(v *model.ConversationView) model.User {
	for _, p := range v.Participants {
		if p.UserID != l.viewer.UserID {
			return p
		}
	}
	return model.User{}
}

func (l *ListController) resortLocked() {
	sort.SliceStable(l.all, func(i, j int) bool {
		return l.all[i].ActivityAt() > l.all[j].ActivityAt()
	})
}
