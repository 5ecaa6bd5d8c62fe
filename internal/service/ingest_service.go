package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"offer-parser/internal/intake"
	"offer-parser/internal/logger"
	"offer-parser/internal/model"
	"offer-parser/internal/repository"
)

type ingestService struct {
	emailRepo   repository.EmailRepository
	accountRepo repository.AccountRepository
	notifier    Notifier
	logger      *logger.Logger
}

func NewIngestService(
	emailRepo repository.EmailRepository,
	accountRepo repository.AccountRepository,
	notifier Notifier,
	logger *logger.Logger,
) IngestService {
	return &ingestService{
		emailRepo:   emailRepo,
		accountRepo: accountRepo,
		notifier:    notifier,
		logger:      logger,
	}
}

// Import stores a parsed message as a pending record. The boolean is false
// when the account already holds a record with the same message id.
func (s *ingestService) Import(ctx context.Context, accountID string, msg *intake.Message) (*model.Email, bool, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	if msg.MessageID == "" {
		return nil, false, fmt.Errorf("%w: no Message-Id", ErrInvalidMessage)
	}

	existing, err := s.emailRepo.FindByMessageID(ctx, accountID, msg.MessageID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to check for duplicate: %w", err)
	}

	receivedAt := msg.Date
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	email := model.NewEmail(accountID, msg.MessageID, msg.From, msg.FromName, msg.Subject, strings.TrimSpace(msg.Body), receivedAt.UTC())
	email.ThreadID = msg.ThreadID
	email.Headers = msg.Headers

	if err := s.emailRepo.Create(ctx, email); err != nil {
		return nil, false, fmt.Errorf("failed to save email: %w", err)
	}

	now := time.Now().UTC()
	account.EmailCount++
	account.LastSync = &now
	account.UpdatedAt = now
	if err := s.accountRepo.Update(ctx, account); err != nil {
		s.logger.Error("Failed to update account counters:", err)
	}

	if s.notifier != nil {
		s.notifier.EmailUpdated(email.Clone())
	}
	return email, true, nil
}

func (s *ingestService) CreateAccount(ctx context.Context, address, displayName string) (*model.Account, error) {
	address = strings.TrimSpace(strings.ToLower(address))
	if address == "" || !strings.Contains(address, "@") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccount, address)
	}
	existing, err := s.accountRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		if a.Address == address {
			return a, nil
		}
	}

	account := model.NewAccount(address, displayName)
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

func (s *ingestService) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	return s.accountRepo.FindAll(ctx)
}

// DeleteAccount removes an account together with its email records.
func (s *ingestService) DeleteAccount(ctx context.Context, id string) error {
	if _, err := s.accountRepo.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.emailRepo.DeleteByAccount(ctx, id); err != nil {
		return fmt.Errorf("failed to delete account emails: %w", err)
	}
	return s.accountRepo.Delete(ctx, id)
}
