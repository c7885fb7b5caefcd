package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation is one chat thread. Created lazily on the first message of a
// session when the caller supplies no identifier.
type Conversation struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         string             `bson:"userId" json:"user_id"`
	Title          string             `bson:"title" json:"title"` // seeded from the first user message, truncated
	CreatedAt      time.Time          `bson:"createdAt" json:"created_at"`
	LastActivityAt time.Time          `bson:"lastActivityAt" json:"last_activity_at"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a conversation's append-only log. The log is the
// sole source of model context and is replayed in creation order every turn.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversationId" json:"conversation_id"`
	Role           string             `bson:"role" json:"role"`
	Content        string             `bson:"content" json:"content"`
	CreatedAt      time.Time          `bson:"createdAt" json:"created_at"`
}
