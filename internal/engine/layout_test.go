package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/amandrive/internal/store"
)

func TestParseRelative(t *testing.T) {
	tests := []struct {
		rel    string
		owner  string
		parent string
		name   string
		ok     bool
	}{
		{"u1/a.txt", "u1", "/", "a.txt", true},
		{"u1/docs/2024/a.txt", "u1", "/docs/2024", "a.txt", true},
		{"/u1/docs/", "u1", "/", "docs", true},
		{"u1", "", "", "", false},
		{"", "", "", "", false},
		{"../etc/passwd", "", "", "", false},
	}
	for _, tt := range tests {
		owner, parent, name, ok := ParseRelative(tt.rel)
		assert.Equal(t, tt.ok, ok, tt.rel)
		assert.Equal(t, tt.owner, owner, tt.rel)
		assert.Equal(t, tt.parent, parent, tt.rel)
		assert.Equal(t, tt.name, name, tt.rel)
	}
}

func TestLocation(t *testing.T) {
	root := filepath.FromSlash("/srv/drive")

	assert.Equal(t, filepath.Join(root, "u1", "a.txt"),
		Location(root, &store.File{OwnerID: "u1", Path: "/", Name: "a.txt"}))
	assert.Equal(t, filepath.Join(root, "u1", "docs", "2024", "a.txt"),
		Location(root, &store.File{OwnerID: "u1", Path: "/docs/2024", Name: "a.txt"}))
	assert.Equal(t, filepath.Join(root, "u1", "a.txt"),
		Location(root, &store.File{OwnerID: "u1", Path: "", Name: "a.txt"}))
}
