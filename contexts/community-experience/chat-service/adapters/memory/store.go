package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domainerrors "agora/contexts/community-experience/chat-service/domain/errors"
	"agora/contexts/community-experience/chat-service/ports"
)

type clientRequest struct {
	messageID   string
	requestHash string
}

type Store struct {
	mu sync.RWMutex

	messages         map[string]ports.Message
	channelMessages  map[string][]string
	channelSequences map[string]int64
	clientRequests   map[string]clientRequest

	sequence uint64
}

func NewStore() *Store {
	return &Store{
		messages:         make(map[string]ports.Message),
		channelMessages:  make(map[string][]string),
		channelSequences: make(map[string]int64),
		clientRequests:   make(map[string]clientRequest),
	}
}

func (s *Store) CreateMessage(ctx context.Context, input ports.CreateMessageInput, now time.Time) (ports.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input.ClientMessageID != "" {
		key := scopedKey(input.TenantID, input.ClientMessageID)
		if previous, ok := s.clientRequests[key]; ok {
			if previous.requestHash != input.RequestHash {
				return ports.Message{}, false, domainerrors.ErrIdempotencyConflict
			}
			return cloneMessage(s.messages[scopedKey(input.TenantID, previous.messageID)]), false, nil
		}
		s.clientRequests[key] = clientRequest{messageID: input.MessageID, requestHash: input.RequestHash}
	}

	channelKey := scopedKey(input.TenantID, input.ChannelID)
	sequence := s.channelSequences[channelKey] + 1
	s.channelSequences[channelKey] = sequence

	item := ports.Message{
		TenantID:        input.TenantID,
		MessageID:       input.MessageID,
		ClientMessageID: input.ClientMessageID,
		ChannelID:       input.ChannelID,
		ThreadID:        input.ThreadID,
		UserID:          input.UserID,
		Username:        input.Username,
		Content:         input.Content,
		SequenceNumber:  sequence,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
		Mentions:        append([]ports.Mention(nil), input.Mentions...),
	}
	s.messages[scopedKey(item.TenantID, item.MessageID)] = item
	s.channelMessages[channelKey] = append(s.channelMessages[channelKey], item.MessageID)
	return cloneMessage(item), true, nil
}

func (s *Store) UpdateMessage(ctx context.Context, input ports.UpdateMessageInput, now time.Time) (ports.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopedKey(input.TenantID, input.MessageID)
	item, ok := s.messages[key]
	if !ok {
		return ports.Message{}, domainerrors.ErrMessageNotFound
	}
	if item.DeletedAt != nil {
		return ports.Message{}, domainerrors.ErrConflict
	}
	if item.UserID != input.UserID {
		return ports.Message{}, domainerrors.ErrForbidden
	}
	if input.EditWindow > 0 && now.UTC().After(item.CreatedAt.Add(input.EditWindow)) {
		return ports.Message{}, domainerrors.ErrEditWindowExpired
	}
	item.Content = input.Content
	item.Mentions = append([]ports.Mention(nil), input.Mentions...)
	item.UpdatedAt = now.UTC()
	item.Edited = true
	s.messages[key] = item
	return cloneMessage(item), nil
}

func (s *Store) DeleteMessage(ctx context.Context, input ports.DeleteMessageInput, now time.Time) (ports.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopedKey(input.TenantID, input.MessageID)
	item, ok := s.messages[key]
	if !ok {
		return ports.Message{}, domainerrors.ErrMessageNotFound
	}
	if item.UserID != input.UserID {
		return ports.Message{}, domainerrors.ErrForbidden
	}
	if item.DeletedAt != nil {
		return cloneMessage(item), nil
	}
	ts := now.UTC()
	item.DeletedAt = &ts
	item.DeletedByUserID = input.UserID
	item.DeletionReason = input.Reason
	item.Content = "[Deleted]"
	item.Mentions = nil
	item.UpdatedAt = ts
	s.messages[key] = item
	return cloneMessage(item), nil
}

func (s *Store) ListMessages(ctx context.Context, input ports.ListMessagesInput) ([]ports.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.channelMessages[scopedKey(input.TenantID, input.ChannelID)]
	items := make([]ports.Message, 0, len(ids))
	for _, id := range ids {
		item, ok := s.messages[scopedKey(input.TenantID, id)]
		if !ok {
			continue
		}
		if input.AfterSequence > 0 && item.SequenceNumber <= input.AfterSequence {
			continue
		}
		if input.BeforeSequence > 0 && item.SequenceNumber >= input.BeforeSequence {
			continue
		}
		items = append(items, cloneMessage(item))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].SequenceNumber > items[j].SequenceNumber
	})
	if input.Limit > 0 && len(items) > input.Limit {
		items = items[:input.Limit]
	}
	return items, nil
}

func (s *Store) NewID(ctx context.Context) (string, error) {
	return "msg_" + s.nextID(), nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) nextID() string {
	n := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("%06d", n)
}

func cloneMessage(in ports.Message) ports.Message {
	out := in
	out.Mentions = append([]ports.Mention(nil), in.Mentions...)
	if in.DeletedAt != nil {
		ts := *in.DeletedAt
		out.DeletedAt = &ts
	}
	return out
}

func scopedKey(tenantID string, id string) string {
	return strings.TrimSpace(tenantID) + "|" + strings.TrimSpace(id)
}

var _ ports.Repository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
