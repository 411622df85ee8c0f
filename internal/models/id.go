package models

import "github.com/google/uuid"

// ID prefixes per entity.
const (
	PrefixProduct    = "prd"
	PrefixInspection = "ins"
	PrefixDefect     = "dfc"
)

// NewID returns a prefixed random identifier such as "ins-3f0c...".
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
