package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an account of the diagram editor. Password holds the bcrypt hash and
// Sessions the refresh sessions of every active login; neither is serialized.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password" json:"-"`
	Sessions  []Session          `bson:"sessions" json:"-"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Session is a refresh token plus its expiry as a unix timestamp (seconds).
type Session struct {
	Token     string `bson:"token" json:"-"`
	ExpiresAt int64  `bson:"expiresAt" json:"expiresAt"`
}

// FindSession returns the session holding token, if any.
func (u *User) FindSession(token string) (Session, bool) {
	for _, s := range u.Sessions {
		if s.Token == token {
			return s, true
		}
	}
	return Session{}, false
}
