// Package schema validates extraction templates and keeps the active one.
//
// Two document shapes are understood. The JSON-schema style
//
//	{"type": "object", "properties": {...}, "required": [...]}
//
// and the flat field map
//
//	{"company_name": {"type": "string", "description": "...", "required": true}}
package schema

import (
	"fmt"
	"sort"

	"offer-parser/internal/model"
)

var validTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"object":  true,
	"array":   true,
	"null":    true,
}

// ValidationError reports a malformed schema document.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid schema: %s", e.Reason)
	}
	return fmt.Sprintf("invalid schema at %s: %s", e.Path, e.Reason)
}

// Field is one top-level field an extraction should produce.
type Field struct {
	Name        string
	Type        string
	Description string
	Required    bool
	// Properties holds the raw nested definitions of object fields.
	Properties map[string]interface{}
}

// Validate checks that doc is a well-formed field-description map.
func Validate(doc model.Document) error {
	if doc == nil {
		return &ValidationError{Reason: "document is empty"}
	}
	props, required, err := split(doc)
	if err != nil {
		return err
	}
	return validateProperties("", props, required)
}

// Fields lists the declared top-level fields sorted by name. The document is
// assumed valid.
func Fields(doc model.Document) []Field {
	props, required, err := split(doc)
	if err != nil {
		return nil
	}
	req := make(map[string]bool, len(required))
	for _, name := range required {
		req[name] = true
	}

	fields := make([]Field, 0, len(props))
	for name, raw := range props {
		def, _ := raw.(map[string]interface{})
		f := Field{Name: name, Required: req[name]}
		f.Type, _ = def["type"].(string)
		f.Description, _ = def["description"].(string)
		if r, ok := def["required"].(bool); ok && r {
			f.Required = true
		}
		f.Properties, _ = def["properties"].(map[string]interface{})
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

// split returns the property definitions and the required list of either
// document shape.
func split(doc model.Document) (map[string]interface{}, []string, error) {
	if _, ok := doc["properties"]; ok {
		if t, ok := doc["type"]; ok && t != "object" {
			return nil, nil, &ValidationError{Path: "type", Reason: "top-level type must be object"}
		}
		props, ok := asMap(doc["properties"])
		if !ok {
			return nil, nil, &ValidationError{Path: "properties", Reason: "must be an object"}
		}
		required, err := requiredList("required", doc["required"])
		if err != nil {
			return nil, nil, err
		}
		return props, required, nil
	}
	return map[string]interface{}(doc), nil, nil
}

func validateProperties(prefix string, props map[string]interface{}, required []string) error {
	if len(props) == 0 {
		return &ValidationError{Path: pathOf(prefix, "properties"), Reason: "no fields declared"}
	}
	for name, raw := range props {
		path := pathOf(prefix, name)
		def, ok := asMap(raw)
		if !ok {
			return &ValidationError{Path: path, Reason: "field definition must be an object"}
		}
		t, ok := def["type"].(string)
		if !ok {
			return &ValidationError{Path: path, Reason: "missing type"}
		}
		if !validTypes[t] {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown type %q", t)}
		}
		if d, exists := def["description"]; exists {
			if _, ok := d.(string); !ok {
				return &ValidationError{Path: path + ".description", Reason: "must be a string"}
			}
		}
		if r, exists := def["required"]; exists {
			if _, ok := r.(bool); !ok {
				// Nested JSON-schema objects carry a list here instead.
				if t != "object" {
					return &ValidationError{Path: path + ".required", Reason: "must be a boolean"}
				}
			}
		}
		if t == "object" {
			if rawProps, exists := def["properties"]; exists {
				nested, ok := asMap(rawProps)
				if !ok {
					return &ValidationError{Path: path + ".properties", Reason: "must be an object"}
				}
				var nestedRequired []string
				if _, isBool := def["required"].(bool); !isBool {
					var err error
					if nestedRequired, err = requiredList(path+".required", def["required"]); err != nil {
						return err
					}
				}
				if err := validateProperties(path, nested, nestedRequired); err != nil {
					return err
				}
			}
		}
	}
	for _, name := range required {
		if _, ok := props[name]; !ok {
			return &ValidationError{Path: pathOf(prefix, "required"), Reason: fmt.Sprintf("%q is not a declared field", name)}
		}
	}
	return nil
}

func requiredList(path string, raw interface{}) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		if s, ok := raw.([]string); ok {
			return s, nil
		}
		return nil, &ValidationError{Path: path, Reason: "must be a list of field names"}
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, &ValidationError{Path: path, Reason: "must be a list of field names"}
		}
		names = append(names, name)
	}
	return names, nil
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case model.Document:
		return map[string]interface{}(m), true
	default:
		return nil, false
	}
}

func pathOf(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
