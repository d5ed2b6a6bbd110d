package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/dealcoach/dealcoach/store"
)

func (d *DB) CreatePromptTemplate(ctx context.Context, create *store.PromptTemplate) (*store.PromptTemplate, error) {
	isDefault := 0
	if create.IsDefault {
		isDefault = 1
	}
	stmt := `INSERT INTO prompt_template (uid, name, template, is_default) VALUES (?, ?, ?, ?)`
	if _, err := d.conn().ExecContext(ctx, stmt, create.UID, create.Name, create.Template, isDefault); err != nil {
		return nil, err
	}
	list, err := d.ListPromptTemplates(ctx, &store.FindPromptTemplate{UID: &create.UID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) ListPromptTemplates(ctx context.Context, find *store.FindPromptTemplate) ([]*store.PromptTemplate, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if v := find.IsDefault; v != nil {
		isDefault := 0
		if *v {
			isDefault = 1
		}
		where, args = append(where, "is_default = ?"), append(args, isDefault)
	}
	query := fmt.Sprintf(
		`SELECT id, uid, name, template, is_default, created_ts, updated_ts
		 FROM prompt_template WHERE %s ORDER BY updated_ts DESC, id DESC`,
		strings.Join(where, " AND "),
	)
	rows, err := d.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.PromptTemplate
	for rows.Next() {
		t := &store.PromptTemplate{}
		var isDefault int
		if err := rows.Scan(&t.ID, &t.UID, &t.Name, &t.Template, &isDefault, &t.CreatedTs, &t.UpdatedTs); err != nil {
			return nil, err
		}
		t.IsDefault = isDefault != 0
		list = append(list, t)
	}
	return list, rows.Err()
}

func (d *DB) UpdatePromptTemplate(ctx context.Context, update *store.UpdatePromptTemplate) (*store.PromptTemplate, error) {
	set, args := []string{}, []any{}
	if v := update.Name; v != nil {
		set, args = append(set, "name = ?"), append(args, *v)
	}
	if v := update.Template; v != nil {
		set, args = append(set, "template = ?"), append(args, *v)
	}
	if v := update.IsDefault; v != nil {
		isDefault := 0
		if *v {
			isDefault = 1
		}
		set, args = append(set, "is_default = ?"), append(args, isDefault)
	}
	if len(set) == 0 {
		list, err := d.ListPromptTemplates(ctx, &store.FindPromptTemplate{UID: &update.UID})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, store.ErrNotFound
		}
		return list[0], nil
	}
	set = append(set, "updated_ts = unixepoch()")
	args = append(args, update.UID)
	stmt := fmt.Sprintf("UPDATE prompt_template SET %s WHERE uid = ?", strings.Join(set, ", "))
	if _, err := d.conn().ExecContext(ctx, stmt, args...); err != nil {
		return nil, err
	}
	list, err := d.ListPromptTemplates(ctx, &store.FindPromptTemplate{UID: &update.UID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) DeletePromptTemplate(ctx context.Context, uid string) error {
	_, err := d.conn().ExecContext(ctx, "DELETE FROM prompt_template WHERE uid = ?", uid)
	return err
}
