package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"offer-parser/internal/model"
	"offer-parser/internal/repository"
	"offer-parser/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	legal := map[string][]model.Status{
		service.OpBeginParsing:    {model.StatusPending, model.StatusParsed, model.StatusReviewed, model.StatusFailed},
		service.OpCompleteParsing: {model.StatusParsing},
		service.OpFailParsing:     {model.StatusParsing},
		service.OpMarkReviewed:    {model.StatusParsed},
		service.OpApplyCorrection: {model.StatusParsed, model.StatusReviewed, model.StatusFailed},
		service.OpForceFail:       {model.StatusParsing},
	}

	for op, from := range legal {
		allowed := make(map[model.Status]bool)
		for _, s := range from {
			allowed[s] = true
		}
		for _, s := range model.AllStatuses {
			assert.Equal(t, allowed[s], service.CanTransition(op, s), "%s from %s", op, s)
		}
	}

	assert.False(t, service.CanTransition("archive", model.StatusParsed))
}

func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, service.ParseConfig{})
	email := env.addEmail(t, "lifecycle", model.StatusPending, time.Now())

	// errorMessageOnlyWhenFailed checks the record after every step
	check := func(e *model.Email) {
		t.Helper()
		assert.Equal(t, e.Status == model.StatusFailed, e.ErrorMessage != nil, "status %s", e.Status)
	}

	// Test pending -> parsing
	e, err := env.records.BeginParsing(ctx, email.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusParsing, e.Status)
	check(e)

	// Test parsing -> failed
	e, err = env.records.FailParsing(ctx, email.ID, "provider down")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, e.Status)
	require.NotNil(t, e.ErrorMessage)
	assert.Equal(t, "provider down", *e.ErrorMessage)
	check(e)

	// Test failed -> parsing clears the message but keeps it as last error
	e, err = env.records.BeginParsing(ctx, email.ID)
	require.NoError(t, err)
	assert.Nil(t, e.ErrorMessage)
	assert.Equal(t, "provider down", e.LastError)
	check(e)

	// Test parsing -> parsed
	e, err = env.records.CompleteParsing(ctx, email.ID, &service.ExtractResult{
		Document: model.Document{"company_name": "Acme"},
		Model:    "mock-model",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusParsed, e.Status)
	assert.Equal(t, "Acme", e.ParsedData["company_name"])
	assert.Equal(t, "mock-model", e.ParsingModel)
	assert.NotNil(t, e.ParsedAt)
	check(e)

	// Test parsed -> reviewed
	e, err = env.records.MarkReviewed(ctx, email.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReviewed, e.Status)
	check(e)

	// Test reviewed -> parsing (re-parse)
	e, err = env.records.BeginParsing(ctx, email.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusParsing, e.Status)
	check(e)

	// Every transition bumped the version and was broadcast
	assert.Equal(t, int64(6), e.Version)
	assert.Len(t, env.notifier.Updates(), 6)
}

func TestMarkReviewedOnPendingIsRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, service.ParseConfig{})
	email := env.addEmail(t, "pending", model.StatusPending, time.Now())

	_, err := env.records.MarkReviewed(ctx, email.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrIllegalTransition))

	var te *service.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, model.StatusPending, te.From)
	assert.Equal(t, service.OpMarkReviewed, te.Op)

	assert.Equal(t, model.StatusPending, env.get(t, email.ID).Status)
	assert.Empty(t, env.notifier.Updates())
}

func TestIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, service.ParseConfig{})
	pending := env.addEmail(t, "pending", model.StatusPending, time.Now())
	parsed := env.addEmail(t, "parsed", model.StatusParsed, time.Now())

	// Test complete and fail require parsing
	_, err := env.records.CompleteParsing(ctx, pending.ID, &service.ExtractResult{Document: model.Document{}}, false)
	assert.ErrorIs(t, err, service.ErrIllegalTransition)
	_, err = env.records.FailParsing(ctx, parsed.ID, "nope")
	assert.ErrorIs(t, err, service.ErrIllegalTransition)

	// Test corrections need an extraction attempt first
	_, err = env.records.ApplyCorrection(ctx, pending.ID, model.Document{"company_name": "X"}, "reviewer")
	assert.ErrorIs(t, err, service.ErrIllegalTransition)

	// Test force fail only applies to stuck records
	_, err = env.records.ForceFail(ctx, parsed.ID, "")
	assert.ErrorIs(t, err, service.ErrIllegalTransition)

	// Test unknown record
	_, err = env.records.BeginParsing(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Equal(t, model.StatusPending, env.get(t, pending.ID).Status)
	assert.Equal(t, model.StatusParsed, env.get(t, parsed.ID).Status)
}

func TestBeginParsingIsExclusive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, service.ParseConfig{})
	email := env.addEmail(t, "race", model.StatusPending, time.Now())

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.records.BeginParsing(ctx, email.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, repository.ErrConflict):
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, conflicts)
	assert.Equal(t, model.StatusParsing, env.get(t, email.ID).Status)
}

func TestBeginParsingFrom(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, service.ParseConfig{})
	email := env.addEmail(t, "claim", model.StatusFailed, time.Now())

	// Test a record that moved since it was read is a conflict
	_, err := env.correction.SaveCorrection(ctx, email.ID, model.Document{"company_name": "Human"}, "alice")
	require.NoError(t, err)
	_, err = env.records.BeginParsingFrom(ctx, email.ID, model.StatusFailed)
	var conflict *repository.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, model.StatusFailed, conflict.Expected)
	assert.Equal(t, model.StatusReviewed, conflict.Actual)
	assert.Equal(t, model.StatusReviewed, env.get(t, email.ID).Status)

	// Test the claim succeeds from the status the caller saw
	claimed, err := env.records.BeginParsingFrom(ctx, email.ID, model.StatusReviewed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusParsing, claimed.Status)

	// Test an in-flight record reports only its actual status
	_, err = env.records.BeginParsing(ctx, email.ID)
	require.True(t, errors.As(err, &conflict))
	assert.Empty(t, conflict.Expected)
	assert.Equal(t, model.StatusParsing, conflict.Actual)
	assert.EqualError(t, err, "email "+email.ID+": already parsing")
}

func TestApplyCorrection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, service.ParseConfig{})
	email := env.addEmail(t, "correct", model.StatusPending, time.Now())

	_, err := env.records.BeginParsing(ctx, email.ID)
	require.NoError(t, err)
	parsed, err := env.records.CompleteParsing(ctx, email.ID, &service.ExtractResult{
		Document: model.Document{"company_name": "Acme", "offer_type": "discount"},
	}, false)
	require.NoError(t, err)

	correction := model.Document{"company_name": "Acme Corp", "offer_type": "discount", "discount_percentage": float64(20)}

	// Test parsed -> reviewed with a diff against the extraction
	reviewed, err := env.records.ApplyCorrection(ctx, email.ID, correction, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReviewed, reviewed.Status)
	assert.Equal(t, "alice", reviewed.CorrectedBy)
	assert.NotNil(t, reviewed.CorrectedAt)
	assert.Equal(t, parsed.ParsedData, reviewed.ParsedData)
	assert.Equal(t, correction, reviewed.EffectiveData())
	require.Len(t, reviewed.CorrectionDiff, 2)
	assert.Equal(t, "company_name", reviewed.CorrectionDiff[0].Field)
	assert.Equal(t, model.ChangeModified, reviewed.CorrectionDiff[0].ChangeType)
	assert.Equal(t, "discount_percentage", reviewed.CorrectionDiff[1].Field)
	assert.Equal(t, model.ChangeAdded, reviewed.CorrectionDiff[1].ChangeType)

	// Test saving the same correction again changes nothing
	again, err := env.records.ApplyCorrection(ctx, email.ID, model.CloneDocument(correction), "alice")
	require.NoError(t, err)
	assert.Equal(t, reviewed.Version, again.Version)
	assert.Equal(t, reviewed.CorrectedAt, again.CorrectedAt)

	// Test a different correction on a reviewed record replaces the first
	changed, err := env.records.ApplyCorrection(ctx, email.ID, model.Document{"company_name": "Other"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, reviewed.Version+1, changed.Version)
	assert.Equal(t, "bob", changed.CorrectedBy)
	assert.Equal(t, parsed.ParsedData, changed.ParsedData)
}

func TestApplyCorrectionOnFailedRecord(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, service.ParseConfig{})
	email := env.addEmail(t, "failed", model.StatusFailed, time.Now())

	reviewed, err := env.records.ApplyCorrection(ctx, email.ID, model.Document{"company_name": "Manual"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReviewed, reviewed.Status)
	assert.Nil(t, reviewed.ErrorMessage)
	assert.Nil(t, reviewed.ParsedData)
	assert.Equal(t, "earlier failure", reviewed.LastError)
	require.Len(t, reviewed.CorrectionDiff, 1)
	assert.Equal(t, model.ChangeAdded, reviewed.CorrectionDiff[0].ChangeType)
}

func TestForceFail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, service.ParseConfig{})
	email := env.addEmail(t, "stuck", model.StatusPending, time.Now())

	_, err := env.records.BeginParsing(ctx, email.ID)
	require.NoError(t, err)

	failed, err := env.records.ForceFail(ctx, email.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "parsing aborted by operator", *failed.ErrorMessage)

	// The record is eligible again
	_, err = env.records.BeginParsing(ctx, email.ID)
	assert.NoError(t, err)
}

func TestSaveCorrection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, service.ParseConfig{})
	email := env.addEmail(t, "overlay", model.StatusParsed, time.Now())

	// Test empty documents are rejected before touching the record
	_, err := env.correction.SaveCorrection(ctx, email.ID, model.Document{}, "alice")
	require.Error(t, err)
	assert.Equal(t, model.StatusParsed, env.get(t, email.ID).Status)

	// Test a correction never calls the extractor
	saved, err := env.correction.SaveCorrection(ctx, email.ID, model.Document{"company_name": "Acme", "price": map[string]interface{}{"amount": 10}}, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReviewed, saved.Status)
	assert.Equal(t, float64(10), saved.CorrectedData["price"].(map[string]interface{})["amount"])
	assert.Empty(t, env.extractor.Calls())
}
