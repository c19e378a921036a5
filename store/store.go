package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"wellnest/models"
)

// MaxPageSize bounds a single messages page.
const MaxPageSize = 200

// DefaultPageSize is used when the caller does not supply a limit.
const DefaultPageSize = 50

// ErrNotFound is returned when a referenced conversation or message does not
// exist.
var ErrNotFound = errors.New("not found")

// ValidationError marks a missing or malformed required field. It is never
// retried and always surfaced directly to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ChatStore is the persistence contract shared by the REST handlers and the
// real-time relay, so both views stay consistent.
type ChatStore interface {
	// GetOrCreateConversation looks up a conversation whose participant set
	// exactly equals {userA, userB}, regardless of argument order. The two
	// participants must be distinct. The returned bool is true when a new
	// conversation was created.
	GetOrCreateConversation(ctx context.Context, userA, userB primitive.ObjectID, convType, title string) (*models.Conversation, bool, error)

	GetConversation(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)

	// ListConversationsForUser returns the user's conversations ordered by
	// last-message timestamp descending.
	ListConversationsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Conversation, error)

	// AppendMessage persists a message and bumps the conversation's
	// lastMessageAt. The bump is best-effort: a failure after the insert
	// leaves the timestamp stale but never loses the message.
	AppendMessage(ctx context.Context, conversationID primitive.ObjectID, senderID *primitive.ObjectID, role, content string, attachments []string) (*models.Message, error)

	// ListMessages returns page (1-based) of a conversation's messages in
	// chronological order. limit is clamped to MaxPageSize.
	ListMessages(ctx context.Context, conversationID primitive.ObjectID, page, limit int) ([]models.Message, error)

	GetMessage(ctx context.Context, id primitive.ObjectID) (*models.Message, error)

	// MarkRead adds userID to the message's read-by set. Idempotent.
	MarkRead(ctx context.Context, messageID, userID primitive.ObjectID) error
}

type UserStore interface {
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

type PushStore interface {
	SaveSubscription(ctx context.Context, sub *models.PushSubscription) error
	SubscriptionsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.PushSubscription, error)
}

// Store is the full persistence surface.
type Store interface {
	ChatStore
	UserStore
	PushStore
}

// ClampLimit normalizes a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
