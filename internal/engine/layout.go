package engine

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amandrive/internal/store"
)

// Location returns the absolute path of f below the storage root, laid out
// as <root>/<owner>/<path>/<name>.
func Location(root string, f *store.File) string {
	parent := strings.TrimPrefix(path.Clean("/"+f.Path), "/")
	return filepath.Join(root, f.OwnerID, filepath.FromSlash(parent), f.Name)
}

// ParseRelative splits a slash-separated path relative to the storage root
// into owner, parent path and name. The parent path is "/" for entries
// directly in the owner's root. ok is false for the owner directory itself
// and for paths that escape the root.
func ParseRelative(rel string) (owner, parent, name string, ok bool) {
	rel = path.Clean(strings.TrimPrefix(filepath.ToSlash(rel), "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", "", "", false
	}
	parts := strings.Split(rel, "/")
	if len(parts) < 2 {
		return "", "", "", false
	}
	owner = parts[0]
	name = parts[len(parts)-1]
	parent = "/" + strings.Join(parts[1:len(parts)-1], "/")
	return owner, parent, name, true
}
