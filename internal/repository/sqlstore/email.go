package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"offer-parser/internal/model"
	"offer-parser/internal/repository"
)

// casAttempts bounds CompareAndUpdate retries when only the version moved.
const casAttempts = 5

const emailColumns = `e.id, e.account_id, e.message_id, e.thread_id, e.sender, e.sender_name,
	e.subject, e.body_text, e.headers, e.received_at, e.status, e.error_message, e.last_error,
	e.parsed_data, e.parsing_model, e.parsed_at, e.corrected_data, e.correction_diff,
	e.corrected_by, e.corrected_at, e.version, e.created_at, e.updated_at`

type EmailRepository struct {
	db *sql.DB
}

func NewEmailRepository(db *sql.DB) *EmailRepository {
	return &EmailRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmail(row rowScanner) (*model.Email, error) {
	var (
		email                                 model.Email
		threadID, senderName, lastError       sql.NullString
		parsingModel, correctedBy, errMessage sql.NullString
		headers, parsed, corrected, diff      []byte
		parsedAt, correctedAt                 sql.NullTime
		status                                string
	)
	err := row.Scan(
		&email.ID, &email.AccountID, &email.MessageID, &threadID, &email.Sender, &senderName,
		&email.Subject, &email.BodyText, &headers, &email.ReceivedAt, &status, &errMessage, &lastError,
		&parsed, &parsingModel, &parsedAt, &corrected, &diff,
		&correctedBy, &correctedAt, &email.Version, &email.CreatedAt, &email.UpdatedAt)
	if err != nil {
		return nil, err
	}

	email.Status = model.Status(status)
	email.ThreadID = threadID.String
	email.SenderName = senderName.String
	email.LastError = lastError.String
	email.ParsingModel = parsingModel.String
	email.CorrectedBy = correctedBy.String
	email.ErrorMessage = stringPtr(errMessage)
	email.ParsedAt = timePtr(parsedAt)
	email.CorrectedAt = timePtr(correctedAt)
	email.ReceivedAt = email.ReceivedAt.UTC()
	email.CreatedAt = email.CreatedAt.UTC()
	email.UpdatedAt = email.UpdatedAt.UTC()

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &email.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers: %w", err)
		}
	}
	if email.ParsedData, err = model.DecodeDocument(parsed); err != nil {
		return nil, err
	}
	if email.CorrectedData, err = model.DecodeDocument(corrected); err != nil {
		return nil, err
	}
	if len(diff) > 0 && string(diff) != "null" {
		if err := json.Unmarshal(diff, &email.CorrectionDiff); err != nil {
			return nil, fmt.Errorf("failed to decode correction diff: %w", err)
		}
	}
	return &email, nil
}

func (r *EmailRepository) Create(ctx context.Context, email *model.Email) error {
	headers, err := encodeJSON(email.Headers, email.Headers == nil)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	parsed, err := encodeJSON(email.ParsedData, email.ParsedData == nil)
	if err != nil {
		return fmt.Errorf("failed to encode parsed data: %w", err)
	}
	corrected, err := encodeJSON(email.CorrectedData, email.CorrectedData == nil)
	if err != nil {
		return fmt.Errorf("failed to encode corrected data: %w", err)
	}
	diff, err := encodeJSON(email.CorrectionDiff, email.CorrectionDiff == nil)
	if err != nil {
		return fmt.Errorf("failed to encode correction diff: %w", err)
	}

	query := `
		INSERT INTO emails (id, account_id, message_id, thread_id, sender, sender_name, subject,
			body_text, headers, received_at, status, error_message, last_error, parsed_data,
			parsing_model, parsed_at, corrected_data, correction_diff, corrected_by, corrected_at,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`
	_, err = r.db.ExecContext(ctx, query,
		email.ID, email.AccountID, email.MessageID, email.ThreadID, email.Sender, email.SenderName, email.Subject,
		email.BodyText, headers, email.ReceivedAt.UTC(), string(email.Status), nullString(email.ErrorMessage), email.LastError, parsed,
		email.ParsingModel, nullTime(email.ParsedAt), corrected, diff, email.CorrectedBy, nullTime(email.CorrectedAt),
		email.Version, email.CreatedAt.UTC(), email.UpdatedAt.UTC())
	return err
}

func (r *EmailRepository) FindByID(ctx context.Context, id string) (*model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails e WHERE e.id = $1`
	email, err := scanEmail(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NotFoundError("email", id)
		}
		return nil, err
	}
	return email, nil
}

func (r *EmailRepository) FindByMessageID(ctx context.Context, accountID, messageID string) (*model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails e WHERE e.account_id = $1 AND e.message_id = $2`
	email, err := scanEmail(r.db.QueryRowContext(ctx, query, accountID, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NotFoundError("email", messageID)
		}
		return nil, err
	}
	return email, nil
}

func (r *EmailRepository) List(ctx context.Context, filter repository.EmailFilter) ([]*model.Email, int, error) {
	filter = filter.Normalize()

	var conditions []string
	var args []interface{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)))
	}
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		conditions = append(conditions, fmt.Sprintf("e.account_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emails e`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM emails e%s ORDER BY e.received_at DESC, e.id ASC LIMIT $%d OFFSET $%d`,
		emailColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, filter.Offset())

	emails, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return emails, total, nil
}

func (r *EmailRepository) query(ctx context.Context, query string, args ...interface{}) ([]*model.Email, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []*model.Email{}
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (r *EmailRepository) CompareAndUpdate(ctx context.Context, id string, expected model.Status, mutate repository.MutateFunc) (*model.Email, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status != expected {
			return nil, &repository.ConflictError{ID: id, Expected: expected, Actual: current.Status}
		}

		next := current.Clone()
		if err := mutate(next); err != nil {
			return nil, err
		}
		next.Version = current.Version + 1
		next.UpdatedAt = time.Now().UTC()

		updated, err := r.writeExtraction(ctx, next, expected, current.Version)
		if err != nil {
			return nil, err
		}
		if updated {
			// Content columns are never written, so re-derive them from the read.
			result := current.Clone()
			copyExtraction(result, next)
			return result, nil
		}
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &repository.ConflictError{ID: id, Expected: expected, Actual: current.Status}
}

func (r *EmailRepository) writeExtraction(ctx context.Context, next *model.Email, expected model.Status, version int64) (bool, error) {
	parsed, err := encodeJSON(next.ParsedData, next.ParsedData == nil)
	if err != nil {
		return false, fmt.Errorf("failed to encode parsed data: %w", err)
	}
	corrected, err := encodeJSON(next.CorrectedData, next.CorrectedData == nil)
	if err != nil {
		return false, fmt.Errorf("failed to encode corrected data: %w", err)
	}
	diff, err := encodeJSON(next.CorrectionDiff, next.CorrectionDiff == nil)
	if err != nil {
		return false, fmt.Errorf("failed to encode correction diff: %w", err)
	}

	query := `
		UPDATE emails SET status=$1, error_message=$2, last_error=$3, parsed_data=$4, parsing_model=$5,
			parsed_at=$6, corrected_data=$7, correction_diff=$8, corrected_by=$9, corrected_at=$10,
			version=$11, updated_at=$12
		WHERE id=$13 AND status=$14 AND version=$15`
	res, err := r.db.ExecContext(ctx, query,
		string(next.Status), nullString(next.ErrorMessage), next.LastError, parsed, next.ParsingModel,
		nullTime(next.ParsedAt), corrected, diff, next.CorrectedBy, nullTime(next.CorrectedAt),
		next.Version, next.UpdatedAt,
		next.ID, string(expected), version)
	if err != nil {
		return false, fmt.Errorf("failed to update email %s: %w", next.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func copyExtraction(dst, src *model.Email) {
	dst.Status = src.Status
	dst.ErrorMessage = src.ErrorMessage
	dst.LastError = src.LastError
	dst.ParsedData = src.ParsedData
	dst.ParsingModel = src.ParsingModel
	dst.ParsedAt = src.ParsedAt
	dst.CorrectedData = src.CorrectedData
	dst.CorrectionDiff = src.CorrectionDiff
	dst.CorrectedBy = src.CorrectedBy
	dst.CorrectedAt = src.CorrectedAt
	dst.Version = src.Version
	dst.UpdatedAt = src.UpdatedAt
}

func (r *EmailRepository) SelectForParsing(ctx context.Context, statuses []model.Status, limit int) ([]*model.Email, error) {
	if limit <= 0 || len(statuses) == 0 {
		return []*model.Email{}, nil
	}
	args := make([]interface{}, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, string(s))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM emails e
		LEFT JOIN accounts a ON a.id = e.account_id
		WHERE e.status IN (%s) AND (a.id IS NULL OR a.active)
		ORDER BY e.received_at ASC, e.id ASC
		LIMIT $%d`, emailColumns, placeholders(1, len(statuses)), len(statuses)+1)
	return r.query(ctx, query, args...)
}

func (r *EmailRepository) CountByStatus(ctx context.Context) (model.StatusCounts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM emails GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(model.StatusCounts, len(model.AllStatuses))
	for _, s := range model.AllStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *EmailRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM emails WHERE account_id = $1`, accountID)
	return err
}
