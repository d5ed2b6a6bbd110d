package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/dealcoach/dealcoach/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	stmt := `INSERT INTO conversation (uid, creator_id, organization_id) VALUES (?, ?, ?)`
	if _, err := d.conn().ExecContext(ctx, stmt, create.UID, create.CreatorID, create.OrganizationID); err != nil {
		return nil, err
	}
	// Fetch it back to populate id and timestamps.
	list, err := d.ListConversations(ctx, &store.FindConversation{UID: &create.UID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if v := find.CreatorID; v != nil {
		where, args = append(where, "creator_id = ?"), append(args, *v)
	}
	if v := find.OrganizationID; v != nil {
		where, args = append(where, "organization_id = ?"), append(args, *v)
	}
	if v := find.Scored; v != nil {
		if *v {
			where = append(where, "score IS NOT NULL")
		} else {
			where = append(where, "score IS NULL")
		}
	}
	query := fmt.Sprintf(
		`SELECT id, uid, creator_id, organization_id, transcript, score, feedback, prompt_tokens, completion_tokens, created_ts
		 FROM conversation WHERE %s ORDER BY created_ts DESC, id DESC`,
		strings.Join(where, " AND "),
	)
	if v := find.Limit; v != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *v)
	}
	rows, err := d.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Conversation
	for rows.Next() {
		c := &store.Conversation{}
		if err := rows.Scan(
			&c.ID, &c.UID, &c.CreatorID, &c.OrganizationID,
			&c.Transcript, &c.Score, &c.Feedback,
			&c.PromptTokens, &c.CompletionTokens, &c.CreatedTs,
		); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}
	if v := update.Transcript; v != nil {
		set, args = append(set, "transcript = ?"), append(args, *v)
	}
	if v := update.Score; v != nil {
		set, args = append(set, "score = ?"), append(args, *v)
	}
	if v := update.Feedback; v != nil {
		set, args = append(set, "feedback = ?"), append(args, *v)
	}
	if v := update.PromptTokens; v != nil {
		set, args = append(set, "prompt_tokens = ?"), append(args, *v)
	}
	if v := update.CompletionTokens; v != nil {
		set, args = append(set, "completion_tokens = ?"), append(args, *v)
	}
	if len(set) == 0 {
		list, err := d.ListConversations(ctx, &store.FindConversation{UID: &update.UID})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, store.ErrNotFound
		}
		return list[0], nil
	}
	args = append(args, update.UID)
	stmt := fmt.Sprintf("UPDATE conversation SET %s WHERE uid = ?", strings.Join(set, ", "))
	result, err := d.conn().ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, store.ErrNotFound
	}
	list, err := d.ListConversations(ctx, &store.FindConversation{UID: &update.UID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) DeleteConversation(ctx context.Context, uid string) error {
	_, err := d.conn().ExecContext(ctx, "DELETE FROM conversation WHERE uid = ?", uid)
	return err
}

func (d *DB) SummarizeConversations(ctx context.Context, find *store.FindConversation) (*store.AnalyticsSummary, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.CreatorID; v != nil {
		where, args = append(where, "creator_id = ?"), append(args, *v)
	}
	if v := find.OrganizationID; v != nil {
		where, args = append(where, "organization_id = ?"), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT COUNT(*),
		        COUNT(score),
		        COALESCE(AVG(score), 0),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(completion_tokens), 0)
		 FROM conversation WHERE %s`,
		strings.Join(where, " AND "),
	)
	s := &store.AnalyticsSummary{}
	if err := d.conn().QueryRowContext(ctx, query, args...).Scan(
		&s.ConversationCount, &s.ScoredCount, &s.AverageScore, &s.PromptTokens, &s.CompletionTokens,
	); err != nil {
		return nil, err
	}
	return s, nil
}
