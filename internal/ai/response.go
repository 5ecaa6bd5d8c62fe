package ai

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"offer-parser/internal/model"
	"offer-parser/internal/schema"
)

// decodeResponse turns the model's reply into a document. Markdown fences and
// text around the outermost object are dropped before decoding.
func decodeResponse(content string) (model.Document, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, errors.New("empty response from AI")
	}

	doc, err := model.DecodeDocument([]byte(text))
	if err == nil && doc != nil {
		return doc, nil
	}

	repaired := repairJSON(text)
	if repaired == "" {
		return nil, fmt.Errorf("invalid JSON response from AI: %q", abbreviate(text))
	}
	doc, err = model.DecodeDocument([]byte(repaired))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON response from AI: %w", err)
	}
	if doc == nil {
		return nil, errors.New("AI response is not a JSON object")
	}
	return doc, nil
}

func repairJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			// drop the language tag
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// filterDocument keeps the schema's declared top-level fields. Undeclared keys
// are returned as stripped, absent optional fields are set to null and an
// absent required field is an error. Values are passed through unmodified.
func filterDocument(raw model.Document, schemaDoc model.Document) (model.Document, []string, error) {
	fields := schema.Fields(schemaDoc)
	if len(fields) == 0 {
		return raw, nil, nil
	}

	declared := make(map[string]bool, len(fields))
	doc := make(model.Document, len(fields))
	var missing []string
	for _, f := range fields {
		declared[f.Name] = true
		v, ok := raw[f.Name]
		switch {
		case ok:
			doc[f.Name] = v
		case f.Required:
			missing = append(missing, f.Name)
		default:
			doc[f.Name] = nil
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("response is missing required fields: %s", strings.Join(missing, ", "))
	}

	var stripped []string
	for k := range raw {
		if !declared[k] {
			stripped = append(stripped, k)
		}
	}
	sort.Strings(stripped)
	return doc, stripped, nil
}

func abbreviate(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
