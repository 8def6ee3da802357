package application

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"agora/internal/shared/mediator"
)

const (
	PostMessageName   = "chat.post_message"
	EditMessageName   = "chat.edit_message"
	DeleteMessageName = "chat.delete_message"
	ListMessagesName  = "chat.list_messages"

	MaxContentLength = 4000
	maxIDLength      = 128
)

var (
	_ mediator.TenantScoped = PostMessage{}
	_ mediator.TenantScoped = EditMessage{}
	_ mediator.TenantScoped = DeleteMessage{}
	_ mediator.TenantScoped = ListMessages{}
)

var notBlank = validation.By(func(value any) error {
	text, _ := value.(string)
	if strings.TrimSpace(text) == "" {
		return errors.New("cannot be blank")
	}
	return nil
})

// PostMessage appends a message to a channel. ClientMessageID makes the post
// idempotent for clients that retry.
type PostMessage struct {
	TenantID        string `json:"tenant_id"`
	ChannelID       string `json:"channel_id"`
	ThreadID        string `json:"thread_id,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	UserID          string `json:"user_id"`
	Username        string `json:"username,omitempty"`
	Content         string `json:"content"`
}

func (PostMessage) RequestName() string { return PostMessageName }

func (c PostMessage) Tenant() string { return c.TenantID }

func (c PostMessage) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TenantID, validation.Required, validation.Length(1, maxIDLength)),
		validation.Field(&c.ChannelID, validation.Required, validation.Length(1, maxIDLength)),
		validation.Field(&c.UserID, validation.Required, validation.Length(1, maxIDLength)),
		validation.Field(&c.ClientMessageID, validation.Length(0, maxIDLength)),
		validation.Field(&c.Content, validation.Required, notBlank, validation.RuneLength(1, MaxContentLength)),
	)
}

type EditMessage struct {
	TenantID  string `json:"tenant_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
}

func (EditMessage) RequestName() string { return EditMessageName }

func (c EditMessage) Tenant() string { return c.TenantID }

func (c EditMessage) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TenantID, validation.Required),
		validation.Field(&c.MessageID, validation.Required),
		validation.Field(&c.UserID, validation.Required),
		validation.Field(&c.Content, validation.Required, notBlank, validation.RuneLength(1, MaxContentLength)),
	)
}

type DeleteMessage struct {
	TenantID  string `json:"tenant_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason,omitempty"`
}

func (DeleteMessage) RequestName() string { return DeleteMessageName }

func (c DeleteMessage) Tenant() string { return c.TenantID }

func (c DeleteMessage) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TenantID, validation.Required),
		validation.Field(&c.MessageID, validation.Required),
		validation.Field(&c.UserID, validation.Required),
		validation.Field(&c.Reason, validation.Length(0, 500)),
	)
}

// ListMessages pages a channel newest first. BeforeSequence and AfterSequence
// are exclusive bounds; zero means unbounded.
type ListMessages struct {
	TenantID       string `json:"tenant_id"`
	ChannelID      string `json:"channel_id"`
	BeforeSequence int64  `json:"before_sequence,omitempty"`
	AfterSequence  int64  `json:"after_sequence,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

func (ListMessages) RequestName() string { return ListMessagesName }

func (q ListMessages) Tenant() string { return q.TenantID }

func (q ListMessages) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.TenantID, validation.Required),
		validation.Field(&q.ChannelID, validation.Required),
		validation.Field(&q.BeforeSequence, validation.Min(int64(0))),
		validation.Field(&q.AfterSequence, validation.Min(int64(0))),
		validation.Field(&q.Limit, validation.Min(0)),
	)
}
