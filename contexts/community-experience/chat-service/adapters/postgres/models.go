package postgresadapter

import (
	"encoding/json"
	"time"

	"agora/contexts/community-experience/chat-service/ports"

	"gorm.io/gorm"
)

type channelSequenceModel struct {
	TenantID     string `gorm:"column:tenant_id;primaryKey;size:128"`
	ChannelID    string `gorm:"column:channel_id;primaryKey;size:128"`
	LastSequence int64  `gorm:"column:last_sequence;not null;default:0"`
}

func (channelSequenceModel) TableName() string {
	return "chat_channel_sequences"
}

type messageModel struct {
	TenantID        string     `gorm:"column:tenant_id;primaryKey;size:128;uniqueIndex:ux_chat_client_message,priority:1;uniqueIndex:ux_chat_channel_sequence,priority:1"`
	MessageID       string     `gorm:"column:message_id;primaryKey;size:64"`
	ClientMessageID *string    `gorm:"column:client_message_id;size:128;uniqueIndex:ux_chat_client_message,priority:2"`
	RequestHash     string     `gorm:"column:request_hash;size:64"`
	ChannelID       string     `gorm:"column:channel_id;size:128;not null;uniqueIndex:ux_chat_channel_sequence,priority:2"`
	SequenceNumber  int64      `gorm:"column:sequence_number;not null;uniqueIndex:ux_chat_channel_sequence,priority:3"`
	ThreadID        string     `gorm:"column:thread_id;size:128"`
	UserID          string     `gorm:"column:user_id;size:128;not null"`
	Username        string     `gorm:"column:username;size:128"`
	Content         string     `gorm:"column:content;not null"`
	Mentions        string     `gorm:"column:mentions"`
	Edited          bool       `gorm:"column:edited;not null;default:false"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime:false"`
	DeletedAt       *time.Time `gorm:"column:deleted_at"`
	DeletedByUserID string     `gorm:"column:deleted_by_user_id;size:128"`
	DeletionReason  string     `gorm:"column:deletion_reason"`
}

func (messageModel) TableName() string {
	return "chat_messages"
}

// Migrate creates the chat tables and indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&channelSequenceModel{}, &messageModel{})
}

func (m messageModel) toPort() ports.Message {
	out := ports.Message{
		TenantID:        m.TenantID,
		MessageID:       m.MessageID,
		ChannelID:       m.ChannelID,
		ThreadID:        m.ThreadID,
		UserID:          m.UserID,
		Username:        m.Username,
		Content:         m.Content,
		SequenceNumber:  m.SequenceNumber,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
		Edited:          m.Edited,
		DeletedByUserID: m.DeletedByUserID,
		DeletionReason:  m.DeletionReason,
		Mentions:        decodeMentions(m.Mentions),
	}
	if m.ClientMessageID != nil {
		out.ClientMessageID = *m.ClientMessageID
	}
	if m.DeletedAt != nil {
		ts := m.DeletedAt.UTC()
		out.DeletedAt = &ts
	}
	return out
}

func encodeMentions(mentions []ports.Mention) string {
	if len(mentions) == 0 {
		return ""
	}
	raw, err := json.Marshal(mentions)
	if err != nil {
		return ""
	}
	return string(raw)
}

func decodeMentions(raw string) []ports.Mention {
	if raw == "" {
		return nil
	}
	var out []ports.Mention
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
