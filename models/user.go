package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// User roles.
const (
	UserRoleMember    = "member"
	UserRoleTherapist = "therapist"
	UserRoleAdmin     = "admin"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash *string            `bson:"passwordHash,omitempty" json:"-"`
	Name         string             `bson:"name" json:"name"`
	Avatar       string             `bson:"avatar" json:"avatar"`
	Role         string             `bson:"role" json:"role"` // member, therapist, admin
	CreatedAt    int64              `bson:"createdAt" json:"createdAt"`
	LastSeen     int64              `bson:"lastSeen" json:"lastSeen"`
}
