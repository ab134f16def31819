package store

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"tripchat/module/chat/model"
)

// Store is the persistence surface of the chat subsystem. The Mongo
// implementation backs the service; the memory implementation backs tests
// and local development.
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListConversationsForViewer(ctx context.Context, viewerID, viewerRole string) ([]*model.ConversationView, error)
	GetOrCreateConversation(ctx context.Context, participantA, participantB string) (*model.ConversationView, error)
	ListMessages(ctx context.Context, conversationID string) ([]*model.MessageView, error)
	AppendMessage(ctx context.Context, conversationID, senderID, content, clientMsgID string) (*model.MessageView, error)
	MarkSeen(ctx context.Context, conversationID, viewerID string) error
}

// MongoStore holds the backing collections, one field per document kind.
type MongoStore struct {
	UserColl *mongo.Collection
	ConvColl *mongo.Collection
	MsgColl  *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		UserColl: db.Collection(model.User{}.TableName()),
		ConvColl: db.Collection(model.Conversation{}.TableName()),
		MsgColl:  db.Collection(model.Message{}.TableName()),
	}
}
