package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Document is a structured extraction result or reviewer correction.
type Document map[string]interface{}

// CloneDocument deep-copies a document. A nil document stays nil.
func CloneDocument(d Document) Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Document:
		return CloneDocument(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// NormalizeDocument round-trips the value through JSON so that numbers,
// nested maps and slices have the same dynamic types a decoded store row has.
func NormalizeDocument(v interface{}) (Document, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return DecodeDocument(raw)
}

// DecodeDocument decodes a JSON object. "null" and empty input decode to nil.
func DecodeDocument(raw []byte) (Document, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	// Nested objects decode as map[string]interface{}; keep them that way.
	return doc, nil
}

// DocumentsEqual compares two documents after normalization.
func DocumentsEqual(a, b Document) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	na, errA := NormalizeDocument(a)
	nb, errB := NormalizeDocument(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

// Change types recorded in a correction diff.
const (
	ChangeAdded    = "added"
	ChangeRemoved  = "removed"
	ChangeModified = "modified"
)

// DiffEntry describes one top-level field that a correction changed.
type DiffEntry struct {
	Field      string      `json:"field"`
	OldValue   interface{} `json:"old_value"`
	NewValue   interface{} `json:"new_value"`
	ChangeType string      `json:"change_type"`
}

// DiffDocuments lists top-level differences between the machine extraction
// and a correction, sorted by field name.
func DiffDocuments(original, corrected Document) []DiffEntry {
	keys := make(map[string]struct{}, len(original)+len(corrected))
	for k := range original {
		keys[k] = struct{}{}
	}
	for k := range corrected {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	var diff []DiffEntry
	for _, name := range names {
		oldVal, inOld := original[name]
		newVal, inNew := corrected[name]
		switch {
		case !inOld:
			diff = append(diff, DiffEntry{Field: name, NewValue: cloneValue(newVal), ChangeType: ChangeAdded})
		case !inNew:
			diff = append(diff, DiffEntry{Field: name, OldValue: cloneValue(oldVal), ChangeType: ChangeRemoved})
		case !reflect.DeepEqual(oldVal, newVal):
			diff = append(diff, DiffEntry{Field: name, OldValue: cloneValue(oldVal), NewValue: cloneValue(newVal), ChangeType: ChangeModified})
		}
	}
	return diff
}
