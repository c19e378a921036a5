package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Message roles.
const (
	RoleUser      = "user"
	RoleTherapist = "therapist"
	RoleBot       = "bot"
	RoleSystem    = "system"
)

type Message struct {
	ID             primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID     `bson:"conversationId" json:"conversationId"`
	SenderID       *primitive.ObjectID    `bson:"senderId,omitempty" json:"senderId,omitempty"` // nil for system/bot messages
	Role           string                 `bson:"role" json:"role"`
	Content        string                 `bson:"content" json:"content"`
	Attachments    []string               `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Metadata       map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	ReadBy         []primitive.ObjectID   `bson:"readBy" json:"readBy"`
	CreatedAt      int64                  `bson:"createdAt" json:"createdAt"` // Unix millis
}
