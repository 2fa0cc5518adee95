package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID mints a random identifier with a resource prefix, e.g. "pg_" for
// pages, "blk_" for blocks, "cs_" for collaboration sessions. An empty
// prefix yields bare hex, used for refresh-token material.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
