package service

import (
	"context"
	"time"

	"offer-parser/internal/intake"
	"offer-parser/internal/model"
	"offer-parser/internal/repository"
)

// RecordService owns the status transitions of email records.
type RecordService interface {
	Get(ctx context.Context, id string) (*model.Email, error)
	List(ctx context.Context, filter repository.EmailFilter) ([]*model.Email, int, error)
	Stats(ctx context.Context) (model.StatusCounts, error)

	BeginParsing(ctx context.Context, id string) (*model.Email, error)
	// BeginParsingFrom claims the record only if its status is still expected.
	BeginParsingFrom(ctx context.Context, id string, expected model.Status) (*model.Email, error)
	CompleteParsing(ctx context.Context, id string, result *ExtractResult, clearCorrection bool) (*model.Email, error)
	FailParsing(ctx context.Context, id string, reason string) (*model.Email, error)
	MarkReviewed(ctx context.Context, id string) (*model.Email, error)
	ApplyCorrection(ctx context.Context, id string, doc model.Document, correctedBy string) (*model.Email, error)
	// ForceFail moves a record stuck in parsing to failed. Operator recovery only.
	ForceFail(ctx context.Context, id string, reason string) (*model.Email, error)
}

type ParseOptions struct {
	// DiscardCorrection clears a stored correction when the extraction succeeds.
	DiscardCorrection bool
}

// ParseService runs extractions for one record or a batch of records.
type ParseService interface {
	ParseOne(ctx context.Context, id string, opts ParseOptions) (*model.Email, error)
	RunBatch(ctx context.Context, size int) (*model.BatchJob, error)
}

type CorrectionService interface {
	SaveCorrection(ctx context.Context, id string, doc model.Document, correctedBy string) (*model.Email, error)
}

type SchemaService interface {
	GetActive(ctx context.Context) (*model.Schema, error)
	SetActive(ctx context.Context, doc model.Document) (*model.Schema, error)
}

type IngestService interface {
	Import(ctx context.Context, accountID string, msg *intake.Message) (*model.Email, bool, error)
	CreateAccount(ctx context.Context, address, displayName string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]*model.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// ExtractRequest carries the record content an extraction needs.
type ExtractRequest struct {
	BodyText    string
	Subject     string
	SenderEmail string
	SenderName  string
	ReceivedAt  time.Time
	Headers     map[string]string
}

func NewExtractRequest(email *model.Email) ExtractRequest {
	return ExtractRequest{
		BodyText:    email.BodyText,
		Subject:     email.Subject,
		SenderEmail: email.Sender,
		SenderName:  email.SenderName,
		ReceivedAt:  email.ReceivedAt,
		Headers:     email.Headers,
	}
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ExtractResult struct {
	Document model.Document
	// StrippedKeys lists response keys that were not declared by the schema.
	StrippedKeys []string
	Model        string
	Usage        Usage
}

// Extractor interface for the external structured-extraction service
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest, schema *model.Schema) (*ExtractResult, error)
}

// Notifier receives every record change. Implementations must not block.
type Notifier interface {
	EmailUpdated(email *model.Email)
	BatchCompleted(job *model.BatchJob)
}
