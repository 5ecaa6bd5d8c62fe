package service_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"offer-parser/internal/ai"
	"offer-parser/internal/logger"
	"offer-parser/internal/model"
	"offer-parser/internal/repository"
	"offer-parser/internal/repository/memory"
	"offer-parser/internal/schema"
	"offer-parser/internal/service"

	"github.com/stretchr/testify/require"
)

// recordingNotifier keeps every notification it receives.
type recordingNotifier struct {
	mu      sync.Mutex
	updates []*model.Email
	batches []*model.BatchJob
}

func (n *recordingNotifier) EmailUpdated(email *model.Email) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, email)
}

func (n *recordingNotifier) BatchCompleted(job *model.BatchJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, job)
}

func (n *recordingNotifier) Updates() []*model.Email {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*model.Email(nil), n.updates...)
}

func (n *recordingNotifier) Batches() []*model.BatchJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*model.BatchJob(nil), n.batches...)
}

type testEnv struct {
	store      *repository.Store
	registry   *schema.Registry
	extractor  *ai.MockExtractor
	notifier   *recordingNotifier
	records    service.RecordService
	parser     service.ParseService
	correction service.CorrectionService
	ingest     service.IngestService
	logger     *logger.Logger
}

func newTestEnv(t *testing.T, cfg service.ParseConfig) *testEnv {
	t.Helper()

	log := logger.NewWithWriter(io.Discard)
	store := memory.NewStore()
	env := &testEnv{
		store:     store,
		registry:  schema.NewRegistry(store.Schemas),
		extractor: ai.NewMockExtractor(),
		notifier:  &recordingNotifier{},
		logger:    log,
	}
	env.records = service.NewRecordService(store.Emails, env.notifier, log)
	env.parser = service.NewParseService(store.Emails, env.records, env.registry, env.extractor, env.notifier, cfg, log)
	env.correction = service.NewCorrectionService(env.records, log)
	env.ingest = service.NewIngestService(store.Emails, store.Accounts, env.notifier, log)
	return env
}

// addEmail stores a record in the given status. receivedAt orders batch selection.
func (env *testEnv) addEmail(t *testing.T, subject string, status model.Status, receivedAt time.Time) *model.Email {
	t.Helper()

	email := model.NewEmail("acc-1", "<"+subject+"@example.com>", "offers@example.com", "Offers", subject, "Body of "+subject, receivedAt)
	email.Status = status
	if status == model.StatusFailed {
		msg := "earlier failure"
		email.ErrorMessage = &msg
		email.LastError = msg
	}
	require.NoError(t, env.store.Emails.Create(context.Background(), email))
	return email
}

func (env *testEnv) get(t *testing.T, id string) *model.Email {
	t.Helper()

	email, err := env.store.Emails.FindByID(context.Background(), id)
	require.NoError(t, err)
	return email
}

// documentResult answers every call with doc.
func documentResult(doc model.Document) func(context.Context, service.ExtractRequest, *model.Schema) (*service.ExtractResult, error) {
	return func(ctx context.Context, req service.ExtractRequest, s *model.Schema) (*service.ExtractResult, error) {
		return &service.ExtractResult{Document: model.CloneDocument(doc), Model: "mock-model"}, nil
	}
}
