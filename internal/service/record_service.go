package service

import (
	"context"
	"fmt"
	"time"

	"offer-parser/internal/logger"
	"offer-parser/internal/model"
	"offer-parser/internal/repository"
)

// Operations on the record state machine.
const (
	OpBeginParsing    = "begin_parsing"
	OpCompleteParsing = "complete_parsing"
	OpFailParsing     = "fail_parsing"
	OpMarkReviewed    = "mark_reviewed"
	OpApplyCorrection = "apply_correction"
	OpForceFail       = "force_fail"
)

// legalFrom lists the statuses each operation may start from.
var legalFrom = map[string][]model.Status{
	OpBeginParsing:    {model.StatusPending, model.StatusParsed, model.StatusReviewed, model.StatusFailed},
	OpCompleteParsing: {model.StatusParsing},
	OpFailParsing:     {model.StatusParsing},
	OpMarkReviewed:    {model.StatusParsed},
	OpApplyCorrection: {model.StatusParsed, model.StatusReviewed, model.StatusFailed},
	OpForceFail:       {model.StatusParsing},
}

// CanTransition reports whether op is legal from status.
func CanTransition(op string, from model.Status) bool {
	for _, s := range legalFrom[op] {
		if s == from {
			return true
		}
	}
	return false
}

const forceFailReason = "parsing aborted by operator"

type recordService struct {
	emailRepo repository.EmailRepository
	notifier  Notifier
	logger    *logger.Logger
}

func NewRecordService(emailRepo repository.EmailRepository, notifier Notifier, logger *logger.Logger) RecordService {
	return &recordService{
		emailRepo: emailRepo,
		notifier:  notifier,
		logger:    logger,
	}
}

func (s *recordService) Get(ctx context.Context, id string) (*model.Email, error) {
	return s.emailRepo.FindByID(ctx, id)
}

func (s *recordService) List(ctx context.Context, filter repository.EmailFilter) ([]*model.Email, int, error) {
	return s.emailRepo.List(ctx, filter.Normalize())
}

func (s *recordService) Stats(ctx context.Context) (model.StatusCounts, error) {
	return s.emailRepo.CountByStatus(ctx)
}

func (s *recordService) BeginParsing(ctx context.Context, id string) (*model.Email, error) {
	current, err := s.emailRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// A record already in parsing has an attempt in flight; report it the
	// same way as a lost race.
	if current.Status == model.StatusParsing {
		return nil, &repository.ConflictError{ID: id, Actual: current.Status}
	}
	return s.beginParsing(ctx, current)
}

// BeginParsingFrom claims the record only if it is still in expected, the
// status the caller saw when it selected the record.
func (s *recordService) BeginParsingFrom(ctx context.Context, id string, expected model.Status) (*model.Email, error) {
	current, err := s.emailRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != expected {
		return nil, &repository.ConflictError{ID: id, Expected: expected, Actual: current.Status}
	}
	return s.beginParsing(ctx, current)
}

func (s *recordService) beginParsing(ctx context.Context, current *model.Email) (*model.Email, error) {
	return s.transition(ctx, current, OpBeginParsing, model.StatusParsing, func(email *model.Email) error {
		clearError(email)
		return nil
	})
}

func (s *recordService) CompleteParsing(ctx context.Context, id string, result *ExtractResult, clearCorrection bool) (*model.Email, error) {
	if result == nil {
		return nil, fmt.Errorf("complete parsing %s: nil result", id)
	}
	return s.apply(ctx, id, OpCompleteParsing, model.StatusParsed, func(email *model.Email) error {
		now := time.Now().UTC()
		email.ParsedData = model.CloneDocument(result.Document)
		email.ParsingModel = result.Model
		email.ParsedAt = &now
		clearError(email)
		if clearCorrection {
			email.CorrectedData = nil
			email.CorrectionDiff = nil
			email.CorrectedBy = ""
			email.CorrectedAt = nil
		}
		return nil
	})
}

func (s *recordService) FailParsing(ctx context.Context, id string, reason string) (*model.Email, error) {
	return s.apply(ctx, id, OpFailParsing, model.StatusFailed, func(email *model.Email) error {
		setError(email, reason)
		return nil
	})
}

func (s *recordService) MarkReviewed(ctx context.Context, id string) (*model.Email, error) {
	return s.apply(ctx, id, OpMarkReviewed, model.StatusReviewed, func(email *model.Email) error {
		return nil
	})
}

func (s *recordService) ApplyCorrection(ctx context.Context, id string, doc model.Document, correctedBy string) (*model.Email, error) {
	current, err := s.emailRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == model.StatusReviewed && current.CorrectedData != nil && model.DocumentsEqual(current.CorrectedData, doc) {
		return current, nil
	}
	return s.transition(ctx, current, OpApplyCorrection, model.StatusReviewed, func(email *model.Email) error {
		now := time.Now().UTC()
		email.CorrectedData = model.CloneDocument(doc)
		email.CorrectionDiff = model.DiffDocuments(email.ParsedData, doc)
		email.CorrectedBy = correctedBy
		email.CorrectedAt = &now
		clearError(email)
		return nil
	})
}

func (s *recordService) ForceFail(ctx context.Context, id string, reason string) (*model.Email, error) {
	if reason == "" {
		reason = forceFailReason
	}
	return s.apply(ctx, id, OpForceFail, model.StatusFailed, func(email *model.Email) error {
		setError(email, reason)
		return nil
	})
}

func (s *recordService) apply(ctx context.Context, id, op string, to model.Status, mutate repository.MutateFunc) (*model.Email, error) {
	current, err := s.emailRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, current, op, to, mutate)
}

// transition checks the table against the status read in current, then
// commits through compare-and-update. A lost race surfaces as a conflict and
// is not retried here.
func (s *recordService) transition(ctx context.Context, current *model.Email, op string, to model.Status, mutate repository.MutateFunc) (*model.Email, error) {
	if !CanTransition(op, current.Status) {
		return nil, &TransitionError{ID: current.ID, From: current.Status, Op: op}
	}

	updated, err := s.emailRepo.CompareAndUpdate(ctx, current.ID, current.Status, func(email *model.Email) error {
		if err := mutate(email); err != nil {
			return err
		}
		email.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"email_id": updated.ID,
		"from":     string(current.Status),
		"to":       string(updated.Status),
	}).Debugf("email %s", op)

	if s.notifier != nil {
		s.notifier.EmailUpdated(updated.Clone())
	}
	return updated, nil
}

// setError enters the failed state's error fields.
func setError(email *model.Email, reason string) {
	msg := reason
	email.ErrorMessage = &msg
	email.LastError = reason
}

// clearError drops the error message when leaving failed. LastError keeps it.
func clearError(email *model.Email) {
	if email.ErrorMessage != nil {
		email.LastError = *email.ErrorMessage
	}
	email.ErrorMessage = nil
}
