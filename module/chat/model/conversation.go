package model

import (
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"tripchat/service/mgo"
)

// Conversation is a two-party support thread. The last-message pointer is
// denormalized so the list page never joins against the messages collection.
type Conversation struct {
	ConversationID string    `bson:"conversation_id" json:"id"`
	ParticipantIDs []string  `bson:"participants" json:"participantIds"`
	LastMessageID  string    `bson:"last_message_id,omitempty" json:"-"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      int64     `bson:"updated_at" json:"updatedAt"` // unix ms, bumped on every append
}

func (Conversation) TableName() string { return "conversations" }

func (c Conversation) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(c.TableName())
}

// PairKey returns the unordered participant pair as a stable key. Duplicate
// conversations created by a first-contact race collapse onto the same key,
// which is how the read path deduplicates them.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (c *Conversation) Pair() string {
	ids := append([]string(nil), c.ParticipantIDs...)
	sort.Strings(ids)
	if len(ids) != 2 {
		return ""
	}
	return PairKey(ids[0], ids[1])
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not viewerID.
func (c *Conversation) OtherParticipant(viewerID string) string {
	for _, id := range c.ParticipantIDs {
		if id != viewerID {
			return id
		}
	}
	return ""
}

// ConversationView is the list entry handed to clients: participant profiles
// resolved, last message attached, viewer-relative flags computed.
type ConversationView struct {
	Conversation
	Participants []User       `json:"participants"`
	LastMessage  *MessageView `json:"lastMessage"`
	IsUnread     bool         `json:"isUnread"`
	IsNew        bool         `json:"isNew,omitempty"`    // synthesized placeholder, no stored row yet
	IsOnline     bool         `json:"isOnline,omitempty"` // other party presence
}

// ActivityAt is the sort key: last message time, falling back to the
// conversation's own update time.
func (v *ConversationView) ActivityAt() int64 {
	if v.LastMessage != nil {
		return v.LastMessage.CreatedAt
	}
	return v.UpdatedAt
}
