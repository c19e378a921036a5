package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"wellnest/models"
)

// MemoryStore is an in-memory Store used by tests and local development. It
// mirrors the Mongo implementation's semantics, including the set-equality
// conversation lookup and the append-only read-by set.
type MemoryStore struct {
	mu            sync.Mutex
	conversations []models.Conversation
	messages      []models.Message
	users         []models.User
	subs          []models.PushSubscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func sameParticipantSet(a, b []primitive.ObjectID) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *MemoryStore) GetOrCreateConversation(_ context.Context, userA, userB primitive.ObjectID, convType, title string) (*models.Conversation, bool, error) {
	if userB.IsZero() {
		return nil, false, &ValidationError{Field: "otherParticipantId", Reason: "required"}
	}
	if userA == userB {
		return nil, false, &ValidationError{Field: "otherParticipantId", Reason: "must differ from caller"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	participants := []primitive.ObjectID{userA, userB}
	for i := range s.conversations {
		if sameParticipantSet(s.conversations[i].Participants, participants) {
			conv := s.conversations[i]
			return &conv, false, nil
		}
	}

	if convType == "" {
		convType = models.ConversationTherapist
	}

	now := time.Now().UnixMilli()
	conv := models.Conversation{
		ID:            primitive.NewObjectID(),
		Participants:  participants,
		Type:          convType,
		Title:         title,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	s.conversations = append(s.conversations, conv)
	return &conv, true, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.conversations {
		if s.conversations[i].ID == id {
			conv := s.conversations[i]
			return &conv, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListConversationsForUser(_ context.Context, userID primitive.ObjectID) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var convs []models.Conversation
	for i := range s.conversations {
		if s.conversations[i].HasParticipant(userID) {
			convs = append(convs, s.conversations[i])
		}
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastMessageAt > convs[j].LastMessageAt
	})
	return convs, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, conversationID primitive.ObjectID, senderID *primitive.ObjectID, role, content string, attachments []string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if role == "" {
		role = models.RoleUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var conv *models.Conversation
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			conv = &s.conversations[i]
			break
		}
	}
	if conv == nil {
		return nil, ErrNotFound
	}

	msg := models.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Role:           role,
		Content:        content,
		Attachments:    attachments,
		ReadBy:         []primitive.ObjectID{},
		CreatedAt:      time.Now().UnixMilli(),
	}
	s.messages = append(s.messages, msg)
	conv.LastMessageAt = msg.CreatedAt
	return &msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID primitive.ObjectID, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	limit = ClampLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	var all []models.Message
	for i := range s.messages {
		if s.messages[i].ConversationID == conversationID {
			all = append(all, s.messages[i])
		}
	}

	// Pages count from the newest message, results are chronological.
	end := len(all) - (page-1)*limit
	if end <= 0 {
		return nil, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]models.Message, end-start)
	copy(out, all[start:end])
	return out, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			msg := s.messages[i]
			return &msg, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) MarkRead(_ context.Context, messageID, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID != messageID {
			continue
		}
		for _, r := range s.messages[i].ReadBy {
			if r == userID {
				return nil
			}
		}
		s.messages[i].ReadBy = append(s.messages[i].ReadBy, userID)
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) GetUserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		if s.users[i].ID == id {
			user := s.users[i]
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		if s.users[i].Email == email {
			user := s.users[i]
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	s.users = append(s.users, *user)
	return nil
}

func (s *MemoryStore) SaveSubscription(_ context.Context, sub *models.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.subs {
		if s.subs[i].UserID == sub.UserID && s.subs[i].Sub.Endpoint == sub.Sub.Endpoint {
			s.subs[i] = *sub
			return nil
		}
	}
	s.subs = append(s.subs, *sub)
	return nil
}

func (s *MemoryStore) SubscriptionsForUser(_ context.Context, userID primitive.ObjectID) ([]models.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []models.PushSubscription
	for i := range s.subs {
		if s.subs[i].UserID == userID {
			subs = append(subs, s.subs[i])
		}
	}
	return subs, nil
}

var _ Store = (*MemoryStore)(nil)
