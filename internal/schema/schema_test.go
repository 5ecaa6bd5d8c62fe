package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"offer-parser/internal/model"
	"offer-parser/internal/repository/memory"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaultDocument(t *testing.T) {
	assert.NoError(t, Validate(DefaultDocument()))

	normalized, err := model.NormalizeDocument(DefaultDocument())
	require.NoError(t, err)
	assert.NoError(t, Validate(normalized))
}

func TestValidateFlatFieldMap(t *testing.T) {
	doc := model.Document{
		"company_name": map[string]interface{}{"type": "string", "description": "Company", "required": true},
		"price": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"amount":   map[string]interface{}{"type": "number"},
				"currency": map[string]interface{}{"type": "string"},
			},
		},
	}
	assert.NoError(t, Validate(doc))

	fields := Fields(doc)
	require.Len(t, fields, 2)
	assert.Equal(t, "company_name", fields[0].Name)
	assert.True(t, fields[0].Required)
	assert.Equal(t, "price", fields[1].Name)
	assert.False(t, fields[1].Required)
	assert.Len(t, fields[1].Properties, 2)
}

func TestValidateRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  model.Document
		path string
	}{
		{"nil", nil, ""},
		{"empty", model.Document{}, "properties"},
		{"field not an object", model.Document{"a": "string"}, "a"},
		{"missing type", model.Document{"a": map[string]interface{}{"description": "x"}}, "a"},
		{"unknown type", model.Document{"a": map[string]interface{}{"type": "money"}}, "a"},
		{"description not a string", model.Document{"a": map[string]interface{}{"type": "string", "description": 3.0}}, "a.description"},
		{"properties not an object", model.Document{"type": "object", "properties": []interface{}{}}, "properties"},
		{"top-level type not object", model.Document{"type": "array", "properties": map[string]interface{}{}}, "type"},
		{"undeclared required", model.Document{
			"type":       "object",
			"properties": map[string]interface{}{"a": map[string]interface{}{"type": "string"}},
			"required":   []interface{}{"b"},
		}, "required"},
		{"bad nested field", model.Document{
			"price": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"amount": map[string]interface{}{"type": "decimal"}},
			},
		}, "price.amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.doc)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.path, verr.Path)
		})
	}
}

func TestFieldsOfJSONSchemaDocument(t *testing.T) {
	fields := Fields(DefaultDocument())

	names := make([]string, 0, len(fields))
	required := map[string]bool{}
	for _, f := range fields {
		names = append(names, f.Name)
		required[f.Name] = f.Required
	}
	want := []string{"company_name", "contact_email", "contact_name", "description", "metrics", "offer_type", "price", "website_url"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("Fields() names mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, required["company_name"])
	assert.True(t, required["offer_type"])
	assert.False(t, required["price"])
}

func TestRegistryGetSetActive(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(memory.NewInMemorySchemaRepository())

	// Test default is served before anything is stored
	active, err := registry.GetActive(ctx)
	require.NoError(t, err)
	assert.True(t, active.Default)
	assert.Contains(t, active.Document, "properties")

	// Test invalid document is rejected and the active one is kept
	_, err = registry.SetActive(ctx, model.Document{"a": map[string]interface{}{"type": "money"}})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	active, err = registry.GetActive(ctx)
	require.NoError(t, err)
	assert.True(t, active.Default)

	// Test swap
	doc := model.Document{
		"company_name": map[string]interface{}{"type": "string"},
		"price": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"amount":   map[string]interface{}{"type": "number"},
				"currency": map[string]interface{}{"type": "string"},
			},
		},
	}
	saved, err := registry.SetActive(ctx, doc)
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())

	active, err = registry.GetActive(ctx)
	require.NoError(t, err)
	assert.False(t, active.Default)
	assert.True(t, model.DocumentsEqual(doc, active.Document))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
type: object
properties:
  company_name:
    type: string
    description: Name of the company
  price:
    type: object
    properties:
      amount:
        type: number
      currency:
        type: string
required:
  - company_name
`), 0o644))

	doc, err := LoadFile(yamlPath)
	require.NoError(t, err)
	fields := Fields(doc)
	require.Len(t, fields, 2)
	assert.Equal(t, "company_name", fields[0].Name)
	assert.True(t, fields[0].Required)
	assert.Equal(t, "Name of the company", fields[0].Description)

	jsonPath := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"offer_type": {"type": "string", "required": true}}`), 0o644))
	doc, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []Field{{Name: "offer_type", Type: "string", Required: true}}, Fields(doc))

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`{"offer_type": {"type": "money"}}`), 0o644))
	_, err = LoadFile(badPath)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
