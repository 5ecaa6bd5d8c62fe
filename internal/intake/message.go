// Package intake turns raw RFC 822 messages and mbox files into the message
// values the ingest service stores as pending records.
package intake

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is the content of one incoming email.
type Message struct {
	MessageID string
	ThreadID  string
	From      string
	FromName  string
	Subject   string
	Date      time.Time
	Body      string
	// Headers keeps the extra headers the extractor is shown, keyed in lower case.
	Headers map[string]string
}

var promptHeaders = []string{"Reply-To", "Cc", "Organization"}

var tagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

// ParseMessage reads one RFC 822 message. The first text/plain part becomes
// the body; an HTML-only message is reduced to its text.
func ParseMessage(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	header := mr.Header
	msg := &Message{Headers: map[string]string{}}

	if msg.MessageID, err = header.MessageID(); err != nil {
		return nil, fmt.Errorf("invalid Message-Id: %w", err)
	}
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = strings.ToLower(from[0].Address)
		msg.FromName = from[0].Name
	} else {
		msg.From = strings.TrimSpace(header.Get("From"))
	}
	if msg.Subject, err = header.Subject(); err != nil {
		msg.Subject = header.Get("Subject")
	}
	if date, err := header.Date(); err == nil {
		msg.Date = date.UTC()
	}
	msg.ThreadID = threadID(header, msg.MessageID)

	for _, key := range promptHeaders {
		if v := strings.TrimSpace(header.Get(key)); v != "" {
			msg.Headers[strings.ToLower(key)] = v
		}
	}

	var html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := h.ContentType()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			if msg.Body == "" {
				msg.Body = string(body)
			}
		case "text/html":
			if html == "" {
				html = string(body)
			}
		}
	}
	if msg.Body == "" && html != "" {
		msg.Body = strings.TrimSpace(tagPattern.ReplaceAllString(html, " "))
	}
	return msg, nil
}

// threadID picks the root of the References chain, then In-Reply-To, then
// the message's own id.
func threadID(header mail.Header, own string) string {
	if refs, err := header.MsgIDList("References"); err == nil && len(refs) > 0 {
		return refs[0]
	}
	if parents, err := header.MsgIDList("In-Reply-To"); err == nil && len(parents) > 0 {
		return parents[0]
	}
	return own
}
