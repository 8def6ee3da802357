package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MentionDTO struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type MessageDTO struct {
	MessageID       string       `json:"message_id"`
	ClientMessageID string       `json:"client_message_id,omitempty"`
	ChannelID       string       `json:"channel_id"`
	ThreadID        string       `json:"thread_id,omitempty"`
	UserID          string       `json:"user_id"`
	Username        string       `json:"username,omitempty"`
	Content         string       `json:"content"`
	SequenceNumber  int64        `json:"sequence_number"`
	Mentions        []MentionDTO `json:"mentions,omitempty"`
	CreatedAt       string       `json:"created_at"`
	UpdatedAt       string       `json:"updated_at,omitempty"`
	Edited          bool         `json:"edited"`
	DeletedAt       string       `json:"deleted_at,omitempty"`
}

type PostMessageRequest struct {
	ThreadID        string `json:"thread_id,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	Content         string `json:"content"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type DeleteMessageRequest struct {
	Reason string `json:"reason,omitempty"`
}

type MessageResponse struct {
	Status string `json:"status"`
	Data   struct {
		Message MessageDTO `json:"message"`
	} `json:"data"`
}

type ListMessagesResponse struct {
	Status string `json:"status"`
	Data   struct {
		Messages []MessageDTO `json:"messages"`
		Limit    int          `json:"limit"`
	} `json:"data"`
}
