package store

import (
	"context"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wellnest/database"
	"wellnest/models"
)

// MongoStore implements Store on top of the shared database handle.
type MongoStore struct {
	db *database.Mongo
}

func NewMongoStore(db *database.Mongo) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) conversations() *mongo.Collection {
	return s.db.Collection("conversations")
}

func (s *MongoStore) messages() *mongo.Collection {
	return s.db.Collection("messages")
}

func (s *MongoStore) users() *mongo.Collection {
	return s.db.Collection("users")
}

func (s *MongoStore) subscriptions() *mongo.Collection {
	return s.db.Collection("subscriptions")
}

func (s *MongoStore) GetOrCreateConversation(ctx context.Context, userA, userB primitive.ObjectID, convType, title string) (*models.Conversation, bool, error) {
	if userB.IsZero() {
		return nil, false, &ValidationError{Field: "otherParticipantId", Reason: "required"}
	}
	// A duplicate participant would turn the $all filter below into a bare
	// membership check and match some other pair's conversation.
	if userA == userB {
		return nil, false, &ValidationError{Field: "otherParticipantId", Reason: "must differ from caller"}
	}

	participants := []primitive.ObjectID{userA, userB}

	// Set-equality lookup: order-independent, no duplicates.
	filter := bson.M{
		"participants": bson.M{
			"$all":  participants,
			"$size": len(participants),
		},
	}

	var existing models.Conversation
	err := s.conversations().FindOne(ctx, filter).Decode(&existing)
	if err == nil {
		return &existing, false, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, false, err
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

	if _, err := s.conversations().InsertOne(ctx, conv); err != nil {
		return nil, false, err
	}
	return &conv, true, nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.conversations().FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *MongoStore) ListConversationsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}})
	cursor, err := s.conversations().Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convs []models.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, conversationID primitive.ObjectID, senderID *primitive.ObjectID, role, content string, attachments []string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if role == "" {
		role = models.RoleUser
	}

	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
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

	if _, err := s.messages().InsertOne(ctx, msg); err != nil {
		return nil, err
	}

	// Best-effort bump; the message is already durable.
	_, err := s.conversations().UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"lastMessageAt": msg.CreatedAt}},
	)
	if err != nil {
		log.Printf("update conversation lastMessageAt: %v", err)
	}

	return &msg, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID primitive.ObjectID, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	limit = ClampLimit(limit)

	// Newest-first fetch keeps pagination cheap; reversed before returning.
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := s.messages().Find(ctx, bson.M{"conversationId": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *MongoStore) GetMessage(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var msg models.Message
	err := s.messages().FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, messageID, userID primitive.ObjectID) error {
	result, err := s.messages().UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$addToSet": bson.M{"readBy": userID}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.users().FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.users().FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.users().InsertOne(ctx, user)
	return err
}

func (s *MongoStore) SaveSubscription(ctx context.Context, sub *models.PushSubscription) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.subscriptions().ReplaceOne(ctx,
		bson.M{"userId": sub.UserID, "sub.endpoint": sub.Sub.Endpoint},
		sub, opts)
	return err
}

func (s *MongoStore) SubscriptionsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.PushSubscription, error) {
	cursor, err := s.subscriptions().Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var subs []models.PushSubscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

var _ Store = (*MongoStore)(nil)
