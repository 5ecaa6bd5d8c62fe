package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"offer-parser/internal/model"
	"offer-parser/internal/repository"

	"gopkg.in/yaml.v2"
)

// Registry holds exactly one active schema document.
type Registry struct {
	repo repository.SchemaRepository
}

func NewRegistry(repo repository.SchemaRepository) *Registry {
	return &Registry{repo: repo}
}

// GetActive returns the stored schema, or the built-in default when none has
// been set yet.
func (r *Registry) GetActive(ctx context.Context) (*model.Schema, error) {
	s, err := r.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.Schema{Document: DefaultDocument(), Default: true}, nil
		}
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return s, nil
}

// SetActive validates doc and swaps it in. Stored extractions are untouched.
func (r *Registry) SetActive(ctx context.Context, doc model.Document) (*model.Schema, error) {
	normalized, err := model.NormalizeDocument(doc)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	if err := Validate(normalized); err != nil {
		return nil, err
	}
	s := &model.Schema{Document: normalized, UpdatedAt: time.Now().UTC()}
	if err := r.repo.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save schema: %w", err)
	}
	return s, nil
}

// LoadFile reads a schema document from a .json, .yaml or .yml file.
func LoadFile(path string) (model.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var doc model.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var v map[interface{}]interface{}
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
		}
		converted, err := fromYAML(v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
		}
		doc, _ = converted.(map[string]interface{})
	default:
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
		}
	}

	doc, err = model.NormalizeDocument(doc)
	if err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// fromYAML turns the map[interface{}]interface{} trees yaml.v2 produces into
// JSON-compatible values.
func fromYAML(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			conv, err := fromYAML(vv)
			if err != nil {
				return nil, err
			}
			out[key] = conv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			conv, err := fromYAML(vv)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}
