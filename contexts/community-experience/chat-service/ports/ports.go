package ports

import (
	"context"
	"time"
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type Mention struct {
	UserID   string
	Username string
}

type Message struct {
	TenantID        string
	MessageID       string
	ClientMessageID string
	ChannelID       string
	ThreadID        string
	UserID          string
	Username        string
	Content         string
	SequenceNumber  int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Edited          bool
	DeletedAt       *time.Time
	DeletedByUserID string
	DeletionReason  string
	Mentions        []Mention
}

type CreateMessageInput struct {
	TenantID        string
	MessageID       string
	ClientMessageID string
	RequestHash     string
	ChannelID       string
	ThreadID        string
	UserID          string
	Username        string
	Content         string
	Mentions        []Mention
}

type UpdateMessageInput struct {
	TenantID   string
	MessageID  string
	UserID     string
	Content    string
	Mentions   []Mention
	EditWindow time.Duration
}

type DeleteMessageInput struct {
	TenantID  string
	MessageID string
	UserID    string
	Reason    string
}

type ListMessagesInput struct {
	TenantID       string
	ChannelID      string
	BeforeSequence int64
	AfterSequence  int64
	Limit          int
}

// Repository stores chat messages per tenant. CreateMessage is idempotent on
// (TenantID, ClientMessageID) when a client id is supplied: a replay with the
// same RequestHash returns the stored message with created=false.
type Repository interface {
	CreateMessage(ctx context.Context, input CreateMessageInput, now time.Time) (Message, bool, error)
	UpdateMessage(ctx context.Context, input UpdateMessageInput, now time.Time) (Message, error)
	DeleteMessage(ctx context.Context, input DeleteMessageInput, now time.Time) (Message, error)
	ListMessages(ctx context.Context, input ListMessagesInput) ([]Message, error)
}
