package service

import (
	"context"

	"tripchat/logger"
	"tripchat/module/chat/model"
	"tripchat/module/chat/store"
	"tripchat/tools/errs"
)

// EventSink fans an event out to every connection currently in the
// conversation's room. Publishing to an empty room is a no-op.
type EventSink interface {
	Publish(conversationID, event string, payload any)
}

// Archiver receives every persisted message for the analytics pipeline.
type Archiver interface {
	Archive(msg *model.MessageView)
}

// ChatService runs the server side of the chat subsystem: persistence via
// the store, fan-out via the sink, optional archival.
type ChatService struct {
	store    store.Store
	sink     EventSink
	archiver Archiver
}

func NewChatService(st store.Store, sink EventSink, archiver Archiver) *ChatService {
	return &ChatService{store: st, sink: sink, archiver: archiver}
}

func (s *ChatService) Store() store.Store { return s.store }

// ListConversations returns the viewer's sidebar list; admins get the
// synthesized every-user list.
func (s *ChatService) ListConversations(ctx context.Context, viewerID, viewerRole string) ([]*model.ConversationView, error) {
	return s.store.ListConversationsForViewer(ctx, viewerID, viewerRole)
}

// OpenConversation is the privileged first-contact path: only the admin may
// initiate a thread with an arbitrary user.
func (s *ChatService) OpenConversation(ctx context.Context, callerID, callerRole, recipientID string) (*model.ConversationView, error) {
	if callerRole != model.RoleAdmin {
		return nil, errs.ErrNoPermission.WrapMsg("only admin can initiate conversations")
	}
	if recipientID == "" {
		return nil, errs.ErrArgs.WrapMsg("recipientId required")
	}
	return s.store.GetOrCreateConversation(ctx, callerID, recipientID)
}

// History returns all messages of a conversation the viewer takes part in.
func (s *ChatService) History(ctx context.Context, viewerID, conversationID string) ([]*model.MessageView, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(viewerID) {
		return nil, errs.ErrNoPermission.WrapMsg("viewer is not a participant")
	}
	return s.store.ListMessages(ctx, conversationID)
}

// Send persists the message and broadcasts it to the room, sender included;
// the sender's client reconciles its optimistic copy by clientMsgID.
func (s *ChatService) Send(ctx context.Context, conversationID, senderID, content, clientMsgID string) (*model.MessageView, error) {
	msg, err := s.store.AppendMessage(ctx, conversationID, senderID, content, clientMsgID)
	if err != nil {
		return nil, err
	}
	if s.sink != nil {
		s.sink.Publish(conversationID, model.EventReceiveMessage, msg)
	}
	if s.archiver != nil {
		s.archiver.Archive(msg)
	}
	return msg, nil
}

// MarkSeen unions the viewer into every read-by set of the conversation and
// broadcasts the new seen status. Idempotent end to end.
func (s *ChatService) MarkSeen(ctx context.Context, conversationID, viewerID string) error {
	if err := s.store.MarkSeen(ctx, conversationID, viewerID); err != nil {
		return err
	}
	if s.sink != nil {
		s.sink.Publish(conversationID, model.EventUpdateSeenStatus, model.SeenStatus{
			ConversationID: conversationID,
			ViewerID:       viewerID,
		})
	}
	logger.Debugf("[ChatService] seen conv=%s viewer=%s", conversationID, viewerID)
	return nil
}
