package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the extraction state of an email record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusParsing  Status = "parsing"
	StatusParsed   Status = "parsed"
	StatusReviewed Status = "reviewed"
	StatusFailed   Status = "failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusParsing, StatusParsed, StatusReviewed, StatusFailed}

// ParseStatus converts a query/string value into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

type Email struct {
	ID         string            `json:"id"`
	AccountID  string            `json:"account_id"`
	MessageID  string            `json:"message_id"`
	ThreadID   string            `json:"thread_id,omitempty"`
	Sender     string            `json:"sender"`
	SenderName string            `json:"sender_name,omitempty"`
	Subject    string            `json:"subject"`
	BodyText   string            `json:"body_text"`
	Headers    map[string]string `json:"headers,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`

	Status       Status  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`
	// LastError keeps the message of the most recent failed attempt after the
	// record has left the failed state.
	LastError string `json:"last_error,omitempty"`

	ParsedData   Document   `json:"parsed_data,omitempty"`
	ParsingModel string     `json:"parsing_model,omitempty"`
	ParsedAt     *time.Time `json:"parsed_at,omitempty"`

	CorrectedData  Document    `json:"corrected_data,omitempty"`
	CorrectionDiff []DiffEntry `json:"correction_diff,omitempty"`
	CorrectedBy    string      `json:"corrected_by,omitempty"`
	CorrectedAt    *time.Time  `json:"corrected_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewEmail(accountID, messageID, sender, senderName, subject, body string, receivedAt time.Time) *Email {
	now := time.Now().UTC()
	return &Email{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		MessageID:  messageID,
		Sender:     sender,
		SenderName: senderName,
		Subject:    subject,
		BodyText:   body,
		ReceivedAt: receivedAt,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// EffectiveData returns the document used for display and export: the
// reviewer's correction when present, otherwise the machine extraction.
func (e *Email) EffectiveData() Document {
	if e.CorrectedData != nil {
		return e.CorrectedData
	}
	return e.ParsedData
}

// HasError reports whether an error message is attached.
func (e *Email) HasError() bool {
	return e.ErrorMessage != nil
}

// Clone returns a deep copy so stored records never share mutable state with callers.
func (e *Email) Clone() *Email {
	if e == nil {
		return nil
	}
	c := *e
	if e.Headers != nil {
		c.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			c.Headers[k] = v
		}
	}
	if e.ErrorMessage != nil {
		msg := *e.ErrorMessage
		c.ErrorMessage = &msg
	}
	c.ParsedAt = cloneTime(e.ParsedAt)
	c.CorrectedAt = cloneTime(e.CorrectedAt)
	c.ParsedData = CloneDocument(e.ParsedData)
	c.CorrectedData = CloneDocument(e.CorrectedData)
	if e.CorrectionDiff != nil {
		c.CorrectionDiff = make([]DiffEntry, len(e.CorrectionDiff))
		for i, d := range e.CorrectionDiff {
			c.CorrectionDiff[i] = DiffEntry{
				Field:      d.Field,
				OldValue:   cloneValue(d.OldValue),
				NewValue:   cloneValue(d.NewValue),
				ChangeType: d.ChangeType,
			}
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StatusCounts holds the number of records per status.
type StatusCounts map[Status]int

// Total sums every status bucket.
func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
