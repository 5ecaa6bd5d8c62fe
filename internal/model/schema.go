package model

import "time"

// Schema is the single active extraction template.
type Schema struct {
	Document  Document  `json:"schema"`
	UpdatedAt time.Time `json:"updated_at"`
	// Default is true when no schema has been stored and the built-in one is served.
	Default bool `json:"default"`
}
