package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"offer-parser/internal/model"
	"offer-parser/internal/repository"
)

const accountColumns = `id, address, display_name, active, last_sync, email_count, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row rowScanner) (*model.Account, error) {
	account := &model.Account{}
	var displayName sql.NullString
	var lastSync sql.NullTime
	err := row.Scan(&account.ID, &account.Address, &displayName, &account.Active,
		&lastSync, &account.EmailCount, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	account.DisplayName = displayName.String
	account.LastSync = timePtr(lastSync)
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO accounts (id, address, display_name, active, last_sync, email_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Address, account.DisplayName, account.Active,
		nullTime(account.LastSync), account.EmailCount, account.CreatedAt.UTC(), account.UpdatedAt.UTC())
	return err
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NotFoundError("account", id)
		}
		return nil, err
	}
	return account, nil
}

func (r *AccountRepository) FindAll(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*model.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) Update(ctx context.Context, account *model.Account) error {
	query := `
		UPDATE accounts SET address=$1, display_name=$2, active=$3, last_sync=$4, email_count=$5, updated_at=$6
		WHERE id=$7`
	res, err := r.db.ExecContext(ctx, query,
		account.Address, account.DisplayName, account.Active, nullTime(account.LastSync),
		account.EmailCount, account.UpdatedAt.UTC(), account.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NotFoundError("account", account.ID)
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}
