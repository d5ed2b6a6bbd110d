package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/dealcoach/dealcoach/store"
)

func (d *DB) CreateConversationLog(ctx context.Context, create *store.ConversationLog) (*store.ConversationLog, error) {
	contextBlob := create.Context
	if contextBlob == "" {
		contextBlob = "{}"
	}
	stmt := `INSERT INTO conversation_log (conversation_id, role, type, content, context) VALUES (?, ?, ?, ?, ?)`
	result, err := d.conn().ExecContext(ctx, stmt, create.ConversationID, create.Role, string(create.Type), create.Content, contextBlob)
	if err != nil {
		return nil, err
	}
	rawID, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	l := &store.ConversationLog{
		ID:             int32(rawID),
		ConversationID: create.ConversationID,
		Role:           create.Role,
		Type:           create.Type,
		Content:        create.Content,
		Context:        contextBlob,
	}
	_ = d.conn().QueryRowContext(ctx, "SELECT created_ts FROM conversation_log WHERE id = ?", l.ID).Scan(&l.CreatedTs)
	return l, nil
}

func (d *DB) ListConversationLogs(ctx context.Context, find *store.FindConversationLog) ([]*store.ConversationLog, error) {
	where, args := []string{"conversation_id = ?"}, []any{find.ConversationID}
	if v := find.Type; v != nil {
		where, args = append(where, "type = ?"), append(args, string(*v))
	}
	query := fmt.Sprintf(
		`SELECT id, conversation_id, role, type, content, context, created_ts
		 FROM conversation_log WHERE %s ORDER BY id ASC`,
		strings.Join(where, " AND "),
	)
	rows, err := d.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ConversationLog
	for rows.Next() {
		l := &store.ConversationLog{}
		var logType string
		if err := rows.Scan(&l.ID, &l.ConversationID, &l.Role, &logType, &l.Content, &l.Context, &l.CreatedTs); err != nil {
			return nil, err
		}
		l.Type = store.LogType(logType)
		list = append(list, l)
	}
	return list, rows.Err()
}
