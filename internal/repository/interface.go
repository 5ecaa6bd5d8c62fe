package repository

import (
	"context"

	"offer-parser/internal/model"
)

// EmailFilter narrows List results. Zero values mean "no filter".
type EmailFilter struct {
	Status    model.Status
	AccountID string
	Page      int
	PageSize  int
}

// Normalize applies paging defaults: page 1, page size 20, max 100.
func (f EmailFilter) Normalize() EmailFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	return f
}

// Offset returns the number of rows to skip for the page.
func (f EmailFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// MutateFunc edits a record in place inside CompareAndUpdate. Returning an
// error aborts the update without writing anything.
type MutateFunc func(email *model.Email) error

// EmailRepository defines the interface for email record operations
type EmailRepository interface {
	Create(ctx context.Context, email *model.Email) error
	FindByID(ctx context.Context, id string) (*model.Email, error)
	FindByMessageID(ctx context.Context, accountID, messageID string) (*model.Email, error)
	// List returns one page ordered by received_at descending, plus the total match count.
	List(ctx context.Context, filter EmailFilter) ([]*model.Email, int, error)
	// CompareAndUpdate applies mutate only if the stored status equals expected.
	// Only extraction fields are persisted; content fields are immutable.
	CompareAndUpdate(ctx context.Context, id string, expected model.Status, mutate MutateFunc) (*model.Email, error)
	// SelectForParsing returns up to limit records in the given statuses,
	// oldest received first, ties broken by id, skipping inactive accounts.
	SelectForParsing(ctx context.Context, statuses []model.Status, limit int) ([]*model.Email, error)
	CountByStatus(ctx context.Context) (model.StatusCounts, error)
	DeleteByAccount(ctx context.Context, accountID string) error
}

// AccountRepository defines the interface for mail account operations
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	FindByID(ctx context.Context, id string) (*model.Account, error)
	FindAll(ctx context.Context) ([]*model.Account, error)
	Update(ctx context.Context, account *model.Account) error
	Delete(ctx context.Context, id string) error
}

// SchemaRepository stores the single active schema row.
type SchemaRepository interface {
	Get(ctx context.Context) (*model.Schema, error)
	Save(ctx context.Context, schema *model.Schema) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Emails   EmailRepository
	Accounts AccountRepository
	Schemas  SchemaRepository
	Close    func() error
}
