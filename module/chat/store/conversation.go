package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tripchat/module/chat/model"
	"tripchat/tools/errs"
	"tripchat/tools/ids"
)

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := s.UserColl.FindOne(ctx, bson.M{"user_id": userID}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("user " + userID)
	}
	if err != nil {
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}
	return &u, nil
}

func (s *MongoStore) listUsers(ctx context.Context, userIDs []string) (map[string]model.User, error) {
	filter := bson.M{}
	if userIDs != nil {
		filter["user_id"] = bson.M{"$in": userIDs}
	}
	cur, err := s.UserColl.Find(ctx, filter)
	if err != nil {
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}
	defer func() { _ = cur.Close(ctx) }()

	out := make(map[string]model.User)
	for cur.Next(ctx) {
		var u model.User
		if err := cur.Decode(&u); err != nil {
			return nil, errs.Wrap(err)
		}
		out[u.UserID] = u
	}
	return out, cur.Err()
}

func (s *MongoStore) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.getConversation(ctx, conversationID)
}

func (s *MongoStore) getConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var c model.Conversation
	err := s.ConvColl.FindOne(ctx, bson.M{"conversation_id": conversationID}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation " + conversationID)
	}
	if err != nil {
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}
	return &c, nil
}

// GetOrCreateConversation finds the thread containing both participants or
// creates it. There is no uniqueness constraint: a concurrent first contact
// can insert a benign duplicate, which the read path collapses by pair.
func (s *MongoStore) GetOrCreateConversation(ctx context.Context, participantA, participantB string) (*model.ConversationView, error) {
	if participantA == "" || participantB == "" || participantA == participantB {
		return nil, errs.ErrArgs.WrapMsg("invalid participant pair")
	}
	a, err := s.GetUser(ctx, participantA)
	if err != nil {
		return nil, err
	}
	b, err := s.GetUser(ctx, participantB)
	if err != nil {
		return nil, err
	}

	var conv model.Conversation
	err = s.ConvColl.FindOne(ctx,
		bson.M{"participants": bson.M{"$all": []string{participantA, participantB}, "$size": 2}},
		options.FindOne().SetSort(bson.M{"created_at": 1}),
	).Decode(&conv)
	switch {
	case err == mongo.ErrNoDocuments:
		now := time.Now()
		conv = model.Conversation{
			ConversationID: ids.GenerateString(),
			ParticipantIDs: []string{participantA, participantB},
			CreatedAt:      now,
			UpdatedAt:      now.UnixMilli(),
		}
		if _, ierr := s.ConvColl.InsertOne(ctx, conv); ierr != nil {
			return nil, errs.ErrTransientIO.WrapMsg(ierr.Error())
		}
	case err != nil:
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}

	users := map[string]model.User{a.UserID: *a, b.UserID: *b}
	lastMsgs, err := s.lastMessages(ctx, []model.Conversation{conv})
	if err != nil {
		return nil, err
	}
	return buildView(participantA, conv, users, lastMsgs), nil
}

// ListConversationsForViewer computes the sidebar list per the viewer's role.
// Admins see one entry per user in the system, synthesized when no thread
// exists yet; everyone else sees only their own threads.
func (s *MongoStore) ListConversationsForViewer(ctx context.Context, viewerID, viewerRole string) ([]*model.ConversationView, error) {
	viewer, err := s.GetUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	cur, err := s.ConvColl.Find(ctx, bson.M{"participants": viewerID})
	if err != nil {
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}
	var convs []model.Conversation
	if err := cur.All(ctx, &convs); err != nil {
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}

	lastMsgs, err := s.lastMessages(ctx, convs)
	if err != nil {
		return nil, err
	}

	if viewerRole == model.RoleAdmin {
		users, err := s.listUsers(ctx, nil)
		if err != nil {
			return nil, err
		}
		others := make([]model.User, 0, len(users))
		for _, u := range users {
			if u.UserID != viewerID {
				others = append(others, u)
			}
		}
		return buildAdminList(*viewer, others, convs, users, lastMsgs), nil
	}

	participantIDs := make([]string, 0, len(convs)*2)
	for _, c := range convs {
		participantIDs = append(participantIDs, c.ParticipantIDs...)
	}
	users, err := s.listUsers(ctx, append(participantIDs, viewerID))
	if err != nil {
		return nil, err
	}
	return buildViewerList(viewerID, convs, users, lastMsgs), nil
}

func (s *MongoStore) lastMessages(ctx context.Context, convs []model.Conversation) (map[string]model.Message, error) {
	msgIDs := make([]string, 0, len(convs))
	for _, c := range convs {
		if c.LastMessageID != "" {
			msgIDs = append(msgIDs, c.LastMessageID)
		}
	}
	out := make(map[string]model.Message, len(msgIDs))
	if len(msgIDs) == 0 {
		return out, nil
	}
	cur, err := s.MsgColl.Find(ctx, bson.M{"message_id": bson.M{"$in": msgIDs}})
	if err != nil {
		return nil, errs.ErrTransientIO.WrapMsg(err.Error())
	}
	defer func() { _ = cur.Close(ctx) }()
	for cur.Next(ctx) {
		var m model.Message
		if err := cur.Decode(&m); err != nil {
			return nil, errs.Wrap(err)
		}
		out[m.MessageID] = m
	}
	return out, cur.Err()
}
