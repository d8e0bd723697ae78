package domain

import "github.com/google/uuid"

// NewID returns a fresh entity ID.
func NewID() string {
	return uuid.NewString()
}
