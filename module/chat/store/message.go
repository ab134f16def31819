package store

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tripchat/module/chat/model"
	"tripchat/tools/errs"
	"tripchat/tools/ids"
)

// ListMessages returns the full history of a conversation in persistence
// order, sender profiles resolved.
func (s *MongoStore) ListMessages(ctx context.Context, conversationID string) ([]*model.MessageView, error) {
	if _, err := s.getConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	cur, err := s.MsgColl.Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "message_id", Value: 1}}),
	)
	if err != nil {
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}
	var msgs []model.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}

	senderIDs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		senderIDs = append(senderIDs, m.SenderID)
	}
	users, err := s.listUsers(ctx, senderIDs)
	if err != nil {
		return nil, err
	}

	out := make([]*model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &model.MessageView{Message: m, Sender: users[m.SenderID]})
	}
	return out, nil
}

// AppendMessage persists one message with read_by initialized to the sender,
// then bumps the conversation's last-message pointer and update time. The
// caller's idempotency token (clientMsgID) is stored and echoed verbatim.
func (s *MongoStore) AppendMessage(ctx context.Context, conversationID, senderID, content, clientMsgID string) (*model.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.ErrContentEmpty.Wrap()
	}
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, errs.ErrNoPermission.WrapMsg("sender is not a participant")
	}
	sender, err := s.GetUser(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg := model.Message{
		MessageID:      ids.GenerateString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ClientMsgID:    clientMsgID,
		Content:        content,
		ReadBy:         []string{senderID},
		CreatedAt:      time.Now().UnixMilli(),
	}
	if _, err := s.MsgColl.InsertOne(ctx, msg); err != nil {
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}

	_, err = s.ConvColl.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID},
		bson.M{"$set": bson.M{
			"last_message_id": msg.MessageID,
			"updated_at":      msg.CreatedAt,
		}},
	)
	if err != nil {
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}

	return &model.MessageView{Message: msg, Sender: *sender}, nil
}

// MarkSeen unions viewerID into the read-by set of every message in the
// conversation. $addToSet makes repeated calls a no-op.
func (s *MongoStore) MarkSeen(ctx context.Context, conversationID, viewerID string) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(viewerID) {
		return errs.ErrNoPermission.WrapMsg("viewer is not a participant")
	}

	_, err = s.MsgColl.UpdateMany(ctx,
		bson.M{"conversation_id": conversationID, "read_by": bson.M{"$ne": viewerID}},
		bson.M{"$addToSet": bson.M{"read_by": viewerID}},
	)
	if err != nil {
		return errs.ErrTransientIO.WrapMsg(err.Error())
	}
	return nil
}
