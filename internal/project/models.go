// Package project owns project records, the in-memory manifest session
// state, structural mutations, and reconciliation against the studio SaaS.
package project

import (
	"time"

	"github.com/google/uuid"
)

// Project is a studio project row. The manifest itself is stored separately
// and versioned by its updated_at timestamp.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FPS       int       `json:"fps"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewID returns a fresh project identifier.
func NewID() string {
	return uuid.NewString()
}
