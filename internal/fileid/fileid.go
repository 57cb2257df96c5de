// Package fileid derives document identity and placement from file paths, so that files
// picked up from disk map onto the same record every time they change.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const prefix = "file-"

// FileDocID returns a stable document id for path. Equivalent spellings of the same
// path ("/a/b", "/a/./b/") yield the same id. The id is URL-path safe.
func FileDocID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(sum[:16])
}

// IsFileDocID reports whether id was produced by FileDocID.
func IsFileDocID(id string) bool {
	return strings.HasPrefix(id, prefix) && len(id) == len(prefix)+32
}

// RelativeFolder returns the directory of path relative to root, slash-separated, for use
// as a corpus folder. Files directly under root, and files outside it, map to the root "".
func RelativeFolder(root, path string) string {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Dir(filepath.Clean(path)))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}
