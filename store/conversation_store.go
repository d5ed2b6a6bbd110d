package store

import (
	"context"

	"github.com/pkg/errors"
)

// CreateConversation creates a new conversation at session start.
func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	return s.driver.CreateConversation(ctx, create)
}

// ListConversations lists conversations matching the given filter.
func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// GetConversation returns the first conversation matching the given filter,
// or ErrNotFound.
func (s *Store) GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// UpdateConversation updates a conversation's mutable fields. Score and
// feedback travel together; a partial pair is rejected before any write.
func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	if (update.Score == nil) != (update.Feedback == nil) {
		return nil, errors.New("score and feedback must be set together")
	}
	return s.driver.UpdateConversation(ctx, update)
}

// DeleteConversation deletes a conversation and its logs (cascade).
func (s *Store) DeleteConversation(ctx context.Context, uid string) error {
	return s.driver.DeleteConversation(ctx, uid)
}

// SummarizeConversations computes the aggregate analytics row for the filter.
func (s *Store) SummarizeConversations(ctx context.Context, find *FindConversation) (*AnalyticsSummary, error) {
	return s.driver.SummarizeConversations(ctx, find)
}

// CreateConversationLog appends an audit record to a conversation.
func (s *Store) CreateConversationLog(ctx context.Context, create *ConversationLog) (*ConversationLog, error) {
	return s.driver.CreateConversationLog(ctx, create)
}

// ListConversationLogs returns audit records for a conversation, oldest first.
func (s *Store) ListConversationLogs(ctx context.Context, find *FindConversationLog) ([]*ConversationLog, error) {
	return s.driver.ListConversationLogs(ctx, find)
}
