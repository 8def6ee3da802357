package httptransport

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ProcessingRecordDTO struct {
	ID                    string `json:"id"`
	TenantID              string `json:"tenant_id"`
	MessageID             string `json:"message_id"`
	MessageType           string `json:"message_type"`
	SourceTopic           string `json:"source_topic,omitempty"`
	Status                string `json:"status"`
	Priority              int    `json:"priority"`
	AttemptCount          int    `json:"attempt_count"`
	MaxAttempts           int    `json:"max_attempts"`
	ContentHash           string `json:"content_hash,omitempty"`
	ReceivedAt            string `json:"received_at"`
	ProcessingStartedAt   string `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt string `json:"processing_completed_at,omitempty"`
	DurationMs            int64  `json:"duration_ms"`
	NextRetryAt           string `json:"next_retry_at,omitempty"`
	ErrorMessage          string `json:"error_message,omitempty"`
	IsDeadLettered        bool   `json:"is_dead_lettered"`
	DeadLetteredAt        string `json:"dead_lettered_at,omitempty"`
	DeadLetterReason      string `json:"dead_letter_reason,omitempty"`
}

type GetRecordResponse struct {
	Item ProcessingRecordDTO `json:"item"`
}

type IsProcessedResponse struct {
	TenantID  string `json:"tenant_id"`
	MessageID string `json:"message_id"`
	Processed bool   `json:"processed"`
}

type ListRecordsResponse struct {
	Items []ProcessingRecordDTO `json:"items"`
}

type DeadLetterListRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Skip int    `json:"skip,omitempty"`
	Take int    `json:"take,omitempty"`
}

type StatisticsResponse struct {
	TenantID          string         `json:"tenant_id"`
	Total             int            `json:"total"`
	Counts            map[string]int `json:"counts"`
	AverageDurationMs float64        `json:"average_duration_ms"`
}

type ContentLookupResponse struct {
	Found     bool                 `json:"found"`
	Processed bool                 `json:"processed"`
	Item      *ProcessingRecordDTO `json:"item,omitempty"`
}

type TransitionRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

type CleanupResponse struct {
	TenantID string `json:"tenant_id"`
	Cutoff   string `json:"cutoff"`
	Deleted  int64  `json:"deleted"`
}
