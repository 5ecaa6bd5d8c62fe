package model

import (
	"time"

	"github.com/google/uuid"
)

// Account is a mail source owned by the ingestion collaborator.
type Account struct {
	ID          string     `json:"id"`
	Address     string     `json:"address"`
	DisplayName string     `json:"display_name,omitempty"`
	Active      bool       `json:"active"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	EmailCount  int        `json:"email_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func NewAccount(address, displayName string) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:          uuid.New().String(),
		Address:     address,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
