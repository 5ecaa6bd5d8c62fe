package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"offer-parser/internal/model"
	"offer-parser/internal/schema"
	"offer-parser/internal/service"
)

// maxPromptChars keeps the user prompt around 5000 tokens.
const maxPromptChars = 20000

const truncationMarker = "\n\n[Email truncated due to length]"

func buildSystemPrompt(doc model.Document) (string, error) {
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode schema: %w", err)
	}

	var fields strings.Builder
	for _, f := range schema.Fields(doc) {
		fmt.Fprintf(&fields, "- %s (%s", f.Name, f.Type)
		if f.Required {
			fields.WriteString(", required")
		}
		fields.WriteString(")")
		if f.Description != "" {
			fmt.Fprintf(&fields, ": %s", f.Description)
		}
		fields.WriteString("\n")
	}

	return fmt.Sprintf(`You are an expert email parser specialized in extracting structured data from commercial offer emails.

Your task is to analyze the email content AND metadata to extract information according to the provided JSON schema.

## Input Format:
You will receive email metadata (subject, sender info, date) followed by the email body.
Use ALL available information to extract the required fields.

## Output Requirements:
1. Return ONLY valid JSON that matches the schema structure
2. Use null for any fields not found in the email
3. Be precise with numbers, currencies, and dates
4. Extract exact values when possible, don't paraphrase
5. For nested objects, include all sub-fields even if null
6. The contact_email should come from the sender's email address if not explicitly mentioned in body
7. The contact_name should come from the sender's name if not explicitly mentioned in body

## Fields:
%s
## JSON Schema to follow:
%s

## Important:
- Do NOT include any text before or after the JSON
- Do NOT wrap the JSON in markdown code blocks
- Ensure all required fields from the schema are present
- Use the email metadata (From, Subject, Date) to supplement missing information`, fields.String(), encoded), nil
}

func buildUserPrompt(req service.ExtractRequest) string {
	parts := []string{"## Email Metadata:\n"}

	if req.Subject != "" {
		parts = append(parts, fmt.Sprintf("**Subject:** %s", req.Subject))
	}
	switch {
	case req.SenderName != "" && req.SenderEmail != "":
		parts = append(parts, fmt.Sprintf("**From:** %s <%s>", req.SenderName, req.SenderEmail))
	case req.SenderEmail != "":
		parts = append(parts, fmt.Sprintf("**From:** %s", req.SenderEmail))
	case req.SenderName != "":
		parts = append(parts, fmt.Sprintf("**From:** %s", req.SenderName))
	}
	if !req.ReceivedAt.IsZero() {
		parts = append(parts, fmt.Sprintf("**Date:** %s", req.ReceivedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	}
	if v := req.Headers["reply-to"]; v != "" {
		parts = append(parts, fmt.Sprintf("**Reply-To:** %s", v))
	}
	if v := req.Headers["cc"]; v != "" {
		parts = append(parts, fmt.Sprintf("**CC:** %s", v))
	}
	if v := req.Headers["organization"]; v != "" {
		parts = append(parts, fmt.Sprintf("**Organization:** %s", v))
	}

	parts = append(parts, fmt.Sprintf("\n## Email Body:\n%s", req.BodyText))

	prompt := strings.Join(parts, "\n")
	if len(prompt) > maxPromptChars {
		prompt = truncateUTF8(prompt, maxPromptChars) + truncationMarker
	}
	return prompt
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
