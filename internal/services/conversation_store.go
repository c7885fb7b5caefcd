package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streetlight/internal/database"
	"streetlight/internal/models"
)

// maxTitleLength bounds conversation titles seeded from the first message.
const maxTitleLength = 60

// ConversationStore persists conversations and their append-only message
// logs. Behind an interface so chat tests can run against an in-memory fake.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MongoConversationStore is the MongoDB-backed store.
type MongoConversationStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// NewMongoConversationStore creates the store over the shared MongoDB handle.
func NewMongoConversationStore(db *database.MongoDB) *MongoConversationStore {
	return &MongoConversationStore{
		conversations: db.Collection(database.CollectionConversations),
		messages:      db.Collection(database.CollectionMessages),
	}
}

// TruncateTitle shortens a first message into a conversation title.
func TruncateTitle(message string) string {
	if len(message) <= maxTitleLength {
		return message
	}
	return message[:maxTitleLength] + "..."
}

// CreateConversation inserts a new conversation.
func (s *MongoConversationStore) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		Title:          TruncateTitle(title),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if _, err := s.conversations.InsertOne(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation loads one conversation by hex ID.
func (s *MongoConversationStore) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}

	var conv models.Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"_id": oid}).Decode(&conv); err != nil {
		return nil, fmt.Errorf("conversation not found: %w", err)
	}
	return &conv, nil
}

// AppendMessage appends one message and bumps the conversation's activity
// timestamp.
func (s *MongoConversationStore) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}

	msg := models.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: oid,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = s.conversations.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"lastActivityAt": msg.CreatedAt}},
	)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// ListMessages returns the full message log in creation order.
func (s *MongoConversationStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}

	cursor, err := s.messages.Find(ctx,
		bson.M{"conversationId": oid},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

// DeleteIdleBefore removes conversations (and their messages) whose last
// activity predates cutoff. Returns the number of conversations removed.
func (s *MongoConversationStore) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cursor, err := s.conversations.Find(ctx, bson.M{"lastActivityAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to find idle conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []primitive.ObjectID
	for cursor.Next(ctx) {
		var conv models.Conversation
		if err := cursor.Decode(&conv); err != nil {
			continue
		}
		ids = append(ids, conv.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := s.messages.DeleteMany(ctx, bson.M{"conversationId": bson.M{"$in": ids}}); err != nil {
		return 0, fmt.Errorf("failed to delete idle messages: %w", err)
	}
	result, err := s.conversations.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete idle conversations: %w", err)
	}
	return result.DeletedCount, nil
}
