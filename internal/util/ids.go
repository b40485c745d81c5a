package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns prefix_<uuid without dashes>, e.g. job_3f2a...
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
