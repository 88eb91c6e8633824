package id

import "github.com/google/uuid"

// New returns a random job id.
func New() string {
	return uuid.NewString()
}
