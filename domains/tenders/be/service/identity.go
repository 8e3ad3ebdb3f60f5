package service

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveTenderID maps a human display name to the canonical tender id:
// lowercase, runs of non-alphanumerics collapsed to single dashes, trimmed.
// The mapping is deterministic so re-creating a tender with the same name
// resolves to the same id.
func DeriveTenderID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = nonSlugChars.ReplaceAllString(id, "-")
	return strings.Trim(id, "-")
}

// FileDocID derives the stable document id for a file record from its path.
// Paths may contain characters that are illegal in document ids, so the id
// is the hex digest of the path.
func FileDocID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return "file-" + hex.EncodeToString(sum[:])
}
