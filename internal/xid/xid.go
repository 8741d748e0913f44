package xid

import (
	"github.com/google/uuid"
)

// New returns a prefixed random identifier, e.g. "draft-3f1c...".
func New(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
