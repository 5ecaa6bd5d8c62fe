package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"offer-parser/internal/logger"
	"offer-parser/internal/model"
	"offer-parser/internal/repository"

	"golang.org/x/sync/errgroup"
)

// SchemaSource supplies the active schema captured at dispatch time.
type SchemaSource interface {
	GetActive(ctx context.Context) (*model.Schema, error)
}

type ParseConfig struct {
	Concurrency  int
	MaxBatchSize int
	CallTimeout  time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries      int
	RetryBackoff time.Duration
}

func (c ParseConfig) withDefaults() ParseConfig {
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.MaxBatchSize < 1 {
		c.MaxBatchSize = 100
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return c
}

type parseService struct {
	emailRepo repository.EmailRepository
	records   RecordService
	schemas   SchemaSource
	extractor Extractor
	notifier  Notifier
	cfg       ParseConfig
	logger    *logger.Logger
}

func NewParseService(
	emailRepo repository.EmailRepository,
	records RecordService,
	schemas SchemaSource,
	extractor Extractor,
	notifier Notifier,
	cfg ParseConfig,
	logger *logger.Logger,
) ParseService {
	return &parseService{
		emailRepo: emailRepo,
		records:   records,
		schemas:   schemas,
		extractor: extractor,
		notifier:  notifier,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// ParseOne runs one extraction for a record. On extraction failure the failed
// record is returned together with the *ExtractionError.
func (s *parseService) ParseOne(ctx context.Context, id string, opts ParseOptions) (*model.Email, error) {
	email, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if email.BodyText == "" {
		return nil, fmt.Errorf("email %s: %w", id, ErrEmptyBody)
	}

	email, err = s.records.BeginParsing(ctx, id)
	if err != nil {
		return nil, err
	}

	// The attempt is now in flight: it resolves on its own timeout even if
	// the caller goes away.
	ctx = context.WithoutCancel(ctx)
	log := s.logger.WithField("email_id", id)

	result, err := s.run(ctx, email)
	if err != nil {
		log.Warn("Extraction failed:", err)
		failed, ferr := s.records.FailParsing(ctx, id, err.Error())
		if ferr != nil {
			log.Error("Failed to record extraction failure:", ferr)
			return nil, ferr
		}
		return failed, err
	}

	parsed, err := s.records.CompleteParsing(ctx, id, result, opts.DiscardCorrection)
	if err != nil {
		log.Error("Failed to store extraction:", err)
		return nil, err
	}
	log.Infof("Parsed email with %s", result.Model)
	return parsed, nil
}

// RunBatch selects up to requested pending or failed records, clamped to
// [1, MaxBatchSize], and extracts them with bounded concurrency. Cancelling
// ctx stops dispatch; calls already dispatched run to completion.
func (s *parseService) RunBatch(ctx context.Context, requested int) (*model.BatchJob, error) {
	size := requested
	if size < 1 {
		size = 1
	}
	if size > s.cfg.MaxBatchSize {
		size = s.cfg.MaxBatchSize
	}

	job := model.NewBatchJob(requested)
	log := s.logger.WithField("batch_id", job.ID)

	candidates, err := s.emailRepo.SelectForParsing(ctx,
		[]model.Status{model.StatusPending, model.StatusFailed}, size)
	if err != nil {
		return nil, fmt.Errorf("failed to select emails: %w", err)
	}
	job.Selected = len(candidates)
	log.Infof("Starting batch of %d emails (requested %d, limit %d)", len(candidates), requested, size)

	results := make([]model.BatchResult, len(candidates))
	detached := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)

	for i, email := range candidates {
		if ctx.Err() != nil {
			results[i] = model.BatchResult{EmailID: email.ID, Outcome: model.OutcomeNotDispatched}
			continue
		}
		i, email := i, email
		// Go blocks while all workers are busy.
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = model.BatchResult{EmailID: email.ID, Outcome: model.OutcomeNotDispatched}
				return nil
			}
			results[i] = s.process(detached, email.ID, email.Status, log)
			return nil
		})
	}
	_ = g.Wait()

	job.Results = results
	for _, r := range results {
		if r.Outcome == model.OutcomeNotDispatched {
			job.Cancelled = true
			break
		}
	}
	job.Tally()
	job.FinishedAt = time.Now().UTC()

	log.Infof("Batch finished: processed=%d successful=%d failed=%d skipped=%d cancelled=%t",
		job.Processed, job.Successful, job.Failed, job.Skipped, job.Cancelled)
	if s.notifier != nil {
		s.notifier.BatchCompleted(job)
	}
	return job, nil
}

// process claims a selected record against the status it was selected in.
func (s *parseService) process(ctx context.Context, id string, selected model.Status, log *logger.Logger) model.BatchResult {
	log = log.WithField("email_id", id)

	email, err := s.records.BeginParsingFrom(ctx, id, selected)
	if err != nil {
		// Another runner claimed it, or it changed since selection.
		log.Debug("Skipping email:", err)
		return model.BatchResult{EmailID: id, Outcome: model.OutcomeSkipped, Error: err.Error()}
	}

	result, err := s.run(ctx, email)
	if err != nil {
		log.Warn("Extraction failed:", err)
		if _, ferr := s.records.FailParsing(ctx, id, err.Error()); ferr != nil {
			log.Error("Failed to record extraction failure:", ferr)
		}
		return model.BatchResult{EmailID: id, Outcome: model.OutcomeFailed, Error: err.Error(), Transient: IsTransient(err)}
	}

	if _, err := s.records.CompleteParsing(ctx, id, result, false); err != nil {
		log.Error("Failed to store extraction:", err)
		return model.BatchResult{EmailID: id, Outcome: model.OutcomeFailed, Error: err.Error()}
	}
	return model.BatchResult{EmailID: id, Outcome: model.OutcomeParsed}
}

// run captures the active schema and calls the extractor, retrying transient
// failures up to the configured count.
func (s *parseService) run(ctx context.Context, email *model.Email) (*ExtractResult, error) {
	active, err := s.schemas.GetActive(ctx)
	if err != nil {
		return nil, PermanentError(fmt.Errorf("failed to load schema: %w", err))
	}
	req := NewExtractRequest(email)

	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * s.cfg.RetryBackoff)
		}
		result, err := s.call(ctx, req, active)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsTransient(err) {
			break
		}
	}
	return nil, lastErr
}

func (s *parseService) call(ctx context.Context, req ExtractRequest, active *model.Schema) (*ExtractResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	result, err := s.extractor.Extract(callCtx, req, active)
	if err == nil {
		if result == nil {
			return nil, PermanentError(errors.New("extractor returned no result"))
		}
		return result, nil
	}

	var ee *ExtractionError
	switch {
	case errors.As(err, &ee):
		return nil, err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return nil, TransientError(fmt.Errorf("extraction timed out after %s: %w", s.cfg.CallTimeout, err))
	default:
		return nil, PermanentError(err)
	}
}
