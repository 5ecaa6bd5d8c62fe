package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"offer-parser/internal/model"
	"offer-parser/internal/repository"
)

// NewStore wires the in-memory repositories together so record selection can
// consult account eligibility.
func NewStore() *repository.Store {
	accounts := NewInMemoryAccountRepository()
	emails := NewInMemoryEmailRepository()
	emails.accounts = accounts
	return &repository.Store{
		Emails:   emails,
		Accounts: accounts,
		Schemas:  NewInMemorySchemaRepository(),
		Close:    func() error { return nil },
	}
}

// Account repository implementation
type InMemoryAccountRepository struct {
	accounts map[string]*model.Account
	mutex    sync.RWMutex
}

func NewInMemoryAccountRepository() *InMemoryAccountRepository {
	return &InMemoryAccountRepository{
		accounts: make(map[string]*model.Account),
	}
}

func (r *InMemoryAccountRepository) Create(ctx context.Context, account *model.Account) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	a := *account
	r.accounts[account.ID] = &a
	return nil
}

func (r *InMemoryAccountRepository) FindByID(ctx context.Context, id string) (*model.Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, repository.NotFoundError("account", id)
	}
	a := *account
	return &a, nil
}

func (r *InMemoryAccountRepository) FindAll(ctx context.Context) ([]*model.Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*model.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		a := *account
		result = append(result, &a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}

func (r *InMemoryAccountRepository) Update(ctx context.Context, account *model.Account) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.accounts[account.ID]; !exists {
		return repository.NotFoundError("account", account.ID)
	}
	a := *account
	r.accounts[account.ID] = &a
	return nil
}

func (r *InMemoryAccountRepository) Delete(ctx context.Context, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.accounts, id)
	return nil
}

// inactive reports whether the account exists and is switched off. Records
// whose account is unknown stay eligible.
func (r *InMemoryAccountRepository) inactive(id string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	account, exists := r.accounts[id]
	return exists && !account.Active
}

// Email repository implementation
type InMemoryEmailRepository struct {
	emails   map[string]*model.Email
	accounts *InMemoryAccountRepository
	mutex    sync.RWMutex
}

func NewInMemoryEmailRepository() *InMemoryEmailRepository {
	return &InMemoryEmailRepository{
		emails: make(map[string]*model.Email),
	}
}

func (r *InMemoryEmailRepository) Create(ctx context.Context, email *model.Email) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.emails[email.ID] = email.Clone()
	return nil
}

func (r *InMemoryEmailRepository) FindByID(ctx context.Context, id string) (*model.Email, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	email, exists := r.emails[id]
	if !exists {
		return nil, repository.NotFoundError("email", id)
	}
	return email.Clone(), nil
}

func (r *InMemoryEmailRepository) FindByMessageID(ctx context.Context, accountID, messageID string) (*model.Email, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, email := range r.emails {
		if email.AccountID == accountID && email.MessageID == messageID {
			return email.Clone(), nil
		}
	}
	return nil, repository.NotFoundError("email", messageID)
}

func (r *InMemoryEmailRepository) List(ctx context.Context, filter repository.EmailFilter) ([]*model.Email, int, error) {
	filter = filter.Normalize()

	r.mutex.RLock()
	var matched []*model.Email
	for _, email := range r.emails {
		if filter.Status != "" && email.Status != filter.Status {
			continue
		}
		if filter.AccountID != "" && email.AccountID != filter.AccountID {
			continue
		}
		matched = append(matched, email.Clone())
	}
	r.mutex.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ReceivedAt.Equal(matched[j].ReceivedAt) {
			return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return []*model.Email{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *InMemoryEmailRepository) CompareAndUpdate(ctx context.Context, id string, expected model.Status, mutate repository.MutateFunc) (*model.Email, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, exists := r.emails[id]
	if !exists {
		return nil, repository.NotFoundError("email", id)
	}
	if stored.Status != expected {
		return nil, &repository.ConflictError{ID: id, Expected: expected, Actual: stored.Status}
	}

	next := stored.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	keepContent(next, stored)
	next.Version = stored.Version + 1
	next.UpdatedAt = time.Now().UTC()

	r.emails[id] = next.Clone()
	return next, nil
}

// keepContent restores the immutable fields a mutation may have touched.
func keepContent(next, stored *model.Email) {
	next.ID = stored.ID
	next.AccountID = stored.AccountID
	next.MessageID = stored.MessageID
	next.ThreadID = stored.ThreadID
	next.Sender = stored.Sender
	next.SenderName = stored.SenderName
	next.Subject = stored.Subject
	next.BodyText = stored.BodyText
	next.Headers = stored.Clone().Headers
	next.ReceivedAt = stored.ReceivedAt
	next.CreatedAt = stored.CreatedAt
}

func (r *InMemoryEmailRepository) SelectForParsing(ctx context.Context, statuses []model.Status, limit int) ([]*model.Email, error) {
	if limit <= 0 {
		return []*model.Email{}, nil
	}
	wanted := make(map[model.Status]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	r.mutex.RLock()
	var candidates []*model.Email
	for _, email := range r.emails {
		if wanted[email.Status] {
			candidates = append(candidates, email.Clone())
		}
	}
	r.mutex.RUnlock()

	if r.accounts != nil {
		eligible := candidates[:0]
		for _, email := range candidates {
			if !r.accounts.inactive(email.AccountID) {
				eligible = append(eligible, email)
			}
		}
		candidates = eligible
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].ReceivedAt.Equal(candidates[j].ReceivedAt) {
			return candidates[i].ReceivedAt.Before(candidates[j].ReceivedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (r *InMemoryEmailRepository) CountByStatus(ctx context.Context) (model.StatusCounts, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	counts := make(model.StatusCounts, len(model.AllStatuses))
	for _, s := range model.AllStatuses {
		counts[s] = 0
	}
	for _, email := range r.emails {
		counts[email.Status]++
	}
	return counts, nil
}

func (r *InMemoryEmailRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, email := range r.emails {
		if email.AccountID == accountID {
			delete(r.emails, id)
		}
	}
	return nil
}

// Schema repository implementation
type InMemorySchemaRepository struct {
	schema *model.Schema
	mutex  sync.RWMutex
}

func NewInMemorySchemaRepository() *InMemorySchemaRepository {
	return &InMemorySchemaRepository{}
}

func (r *InMemorySchemaRepository) Get(ctx context.Context) (*model.Schema, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.schema == nil {
		return nil, repository.NotFoundError("schema", "")
	}
	return &model.Schema{
		Document:  model.CloneDocument(r.schema.Document),
		UpdatedAt: r.schema.UpdatedAt,
	}, nil
}

func (r *InMemorySchemaRepository) Save(ctx context.Context, schema *model.Schema) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.schema = &model.Schema{
		Document:  model.CloneDocument(schema.Document),
		UpdatedAt: schema.UpdatedAt,
	}
	return nil
}
