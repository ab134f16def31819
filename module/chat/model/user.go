package model

import (
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"tripchat/service/mgo"
)

// Marketplace roles. One side of every support conversation is the admin.
const (
	RoleUser     = "user"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

// User is the display profile the chat subsystem reads; account management
// lives elsewhere in the marketplace and never goes through this service.
type User struct {
	UserID    string    `bson:"user_id" json:"id"`
	Role      string    `bson:"role" json:"role"`
	Name      string    `bson:"name" json:"name"`
	PhotoURL  string    `bson:"photo_url" json:"photo"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

func (User) TableName() string { return "users" }

func (u User) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(u.TableName())
}
