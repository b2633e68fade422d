// Package ids generates the identifiers used throughout the engine.
package ids

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// New returns a fresh opaque identifier suitable for nodes, edges and runs.
func New() string {
	return uuid.New().String()
}

// Workspace derives the stable workspace identifier from the absolute path
// of its graph file: a 256-bit content-free hash of the path string. Two
// server processes pointed at the same graph file always agree on its id.
func Workspace(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])
}
