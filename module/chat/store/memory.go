package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tripchat/module/chat/model"
	"tripchat/tools/errs"
	"tripchat/tools/ids"
)

// MemoryStore keeps everything in maps behind one mutex. It implements the
// same validation and list-assembly rules as the Mongo store and backs unit
// tests and local development without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]model.User
	convs map[string]*model.Conversation
	msgs  map[string][]*model.Message // conversation id -> persistence order

	now func() time.Time // injectable clock for tests
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]model.User),
		convs: make(map[string]*model.Conversation),
		msgs:  make(map[string][]*model.Message),
		now:   time.Now,
	}
}

// SetClock replaces the time source; tests use it to pin timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }

// PutUser seeds a profile. The chat service never creates users itself.
func (s *MemoryStore) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user " + userID)
	}
	return &u, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation " + conversationID)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetOrCreateConversation(_ context.Context, participantA, participantB string) (*model.ConversationView, error) {
	if participantA == "" || participantB == "" || participantA == participantB {
		return nil, errs.ErrArgs.WrapMsg("invalid participant pair")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.users[participantA]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user " + participantA)
	}
	b, ok := s.users[participantB]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user " + participantB)
	}

	pair := model.PairKey(participantA, participantB)
	var conv *model.Conversation
	for _, c := range s.convs {
		if c.Pair() == pair && (conv == nil || c.CreatedAt.Before(conv.CreatedAt)) {
			conv = c
		}
	}
	if conv == nil {
		now := s.now()
		conv = &model.Conversation{
			ConversationID: ids.GenerateString(),
			ParticipantIDs: []string{participantA, participantB},
			CreatedAt:      now,
			UpdatedAt:      now.UnixMilli(),
		}
		s.convs[conv.ConversationID] = conv
	}

	users := map[string]model.User{a.UserID: a, b.UserID: b}
	return buildView(participantA, *conv, users, s.lastMessagesLocked([]model.Conversation{*conv})), nil
}

func (s *MemoryStore) ListConversationsForViewer(_ context.Context, viewerID, viewerRole string) ([]*model.ConversationView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	viewer, ok := s.users[viewerID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user " + viewerID)
	}

	var convs []model.Conversation
	for _, c := range s.convs {
		if c.HasParticipant(viewerID) {
			convs = append(convs, *c)
		}
	}
	lastMsgs := s.lastMessagesLocked(convs)

	users := make(map[string]model.User, len(s.users))
	for id, u := range s.users {
		users[id] = u
	}

	if viewerRole == model.RoleAdmin {
		others := make([]model.User, 0, len(users))
		for _, u := range users {
			if u.UserID != viewerID {
				others = append(others, u)
			}
		}
		sort.Slice(others, func(i, j int) bool { return others[i].UserID < others[j].UserID })
		return buildAdminList(viewer, others, convs, users, lastMsgs), nil
	}
	return buildViewerList(viewerID, convs, users, lastMsgs), nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]*model.MessageView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.convs[conversationID]; !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation " + conversationID)
	}
	out := make([]*model.MessageView, 0, len(s.msgs[conversationID]))
	for _, m := range s.msgs[conversationID] {
		out = append(out, &model.MessageView{Message: *m, Sender: s.users[m.SenderID]})
	}
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, conversationID, senderID, content, clientMsgID string) (*model.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.ErrContentEmpty.Wrap()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation " + conversationID)
	}
	if !conv.HasParticipant(senderID) {
		return nil, errs.ErrNoPermission.WrapMsg("sender is not a participant")
	}
	sender, ok := s.users[senderID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user " + senderID)
	}

	msg := &model.Message{
		MessageID:      ids.GenerateString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ClientMsgID:    clientMsgID,
		Content:        content,
		ReadBy:         []string{senderID},
		CreatedAt:      s.now().UnixMilli(),
	}
	s.msgs[conversationID] = append(s.msgs[conversationID], msg)
	conv.LastMessageID = msg.MessageID
	conv.UpdatedAt = msg.CreatedAt

	return &model.MessageView{Message: *msg, Sender: sender}, nil
}

func (s *MemoryStore) MarkSeen(_ context.Context, conversationID, viewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("conversation " + conversationID)
	}
	if !conv.HasParticipant(viewerID) {
		return errs.ErrNoPermission.WrapMsg("viewer is not a participant")
	}
	for _, m := range s.msgs[conversationID] {
		m.AddReadBy(viewerID)
	}
	return nil
}

func (s *MemoryStore) lastMessagesLocked(convs []model.Conversation) map[string]model.Message {
	out := make(map[string]model.Message)
	for _, c := range convs {
		if c.LastMessageID == "" {
			continue
		}
		for _, m := range s.msgs[c.ConversationID] {
			if m.MessageID == c.LastMessageID {
				out[m.MessageID] = *m
			}
		}
	}
	return out
}
