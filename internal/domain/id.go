package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a new opaque 128-bit identifier encoded as 32 lowercase
// hex characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
