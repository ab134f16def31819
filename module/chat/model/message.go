package model

import (
	"strings"

	"go.mongodb.org/mongo-driver/mongo"

	"tripchat/service/mgo"
)

// TempIDPrefix marks a client-local optimistic message that has not been
// confirmed by the server yet. Server-assigned ids never carry it.
const TempIDPrefix = "temp_"

// Message is one persisted chat line. Immutable after insert except for
// read_by, which only ever grows.
type Message struct {
	MessageID      string   `bson:"message_id" json:"id"`
	ConversationID string   `bson:"conversation_id" json:"conversationId"`
	SenderID       string   `bson:"sender_id" json:"senderId"`
	ClientMsgID    string   `bson:"client_msg_id,omitempty" json:"clientMsgId,omitempty"`
	Content        string   `bson:"content" json:"content"`
	ReadBy         []string `bson:"read_by" json:"readBy"`
	CreatedAt      int64    `bson:"created_at" json:"createdAt"` // unix ms, server-assigned
}

func (Message) TableName() string { return "messages" }

func (m Message) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(m.TableName())
}

func (m *Message) IsTemp() bool {
	return strings.HasPrefix(m.MessageID, TempIDPrefix)
}

func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// AddReadBy unions userID into the read-by set. Returns true if it was added.
func (m *Message) AddReadBy(userID string) bool {
	if m.ReadByUser(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}

// UnreadFor reports whether the message makes a conversation unread for the
// viewer: someone else sent it and the viewer has not acknowledged it.
func (m *Message) UnreadFor(viewerID string) bool {
	if m == nil {
		return false
	}
	return m.SenderID != viewerID && !m.ReadByUser(viewerID)
}

// MessageView is a message with its sender's profile resolved.
type MessageView struct {
	Message
	Sender User `json:"sender"`
}
