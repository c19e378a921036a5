package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Conversation types.
const (
	ConversationTherapist = "user-to-therapist"
	ConversationBot       = "user-to-bot"
	ConversationGroup     = "group"
)

type Conversation struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Participants  []primitive.ObjectID `bson:"participants" json:"participants"`
	Type          string               `bson:"type" json:"type"`
	Title         string               `bson:"title,omitempty" json:"title,omitempty"`
	LastMessageAt int64                `bson:"lastMessageAt" json:"lastMessageAt"`
	CreatedAt     int64                `bson:"createdAt" json:"createdAt"`
}

// HasParticipant reports whether userID is in the participant set.
func (c *Conversation) HasParticipant(userID primitive.ObjectID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
