package store

import "context"

// PromptTemplate is a scoring rubric. The template text may reference
// {{.persona}} and {{.product}} variables rendered at evaluation time.
type PromptTemplate struct {
	ID        int32
	UID       string
	Name      string
	Template  string
	IsDefault bool
	CreatedTs int64
	UpdatedTs int64
}

// FindPromptTemplate filters for ListPromptTemplates.
type FindPromptTemplate struct {
	UID       *string
	IsDefault *bool
}

// UpdatePromptTemplate carries fields accepted by UpdatePromptTemplate.
type UpdatePromptTemplate struct {
	UID       string
	Name      *string
	Template  *string
	IsDefault *bool
}

// CreatePromptTemplate creates a new rubric template.
func (s *Store) CreatePromptTemplate(ctx context.Context, create *PromptTemplate) (*PromptTemplate, error) {
	return s.driver.CreatePromptTemplate(ctx, create)
}

// ListPromptTemplates lists rubric templates matching the given filter.
func (s *Store) ListPromptTemplates(ctx context.Context, find *FindPromptTemplate) ([]*PromptTemplate, error) {
	return s.driver.ListPromptTemplates(ctx, find)
}

// GetPromptTemplate returns the first template matching the given filter,
// or ErrNotFound.
func (s *Store) GetPromptTemplate(ctx context.Context, find *FindPromptTemplate) (*PromptTemplate, error) {
	list, err := s.driver.ListPromptTemplates(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// UpdatePromptTemplate updates a template's mutable fields.
func (s *Store) UpdatePromptTemplate(ctx context.Context, update *UpdatePromptTemplate) (*PromptTemplate, error) {
	return s.driver.UpdatePromptTemplate(ctx, update)
}

// DeletePromptTemplate deletes a template.
func (s *Store) DeletePromptTemplate(ctx context.Context, uid string) error {
	return s.driver.DeletePromptTemplate(ctx, uid)
}
