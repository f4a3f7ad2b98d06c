package ignore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, patterns ...string) *Matcher {
	t.Helper()
	m, err := New(patterns...)
	require.NoError(t, err)
	return m
}

func TestMatch_Patterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{name: "exact name", pattern: "foo.txt", path: "foo.txt", want: true},
		{name: "exact name no match", pattern: "foo.txt", path: "bar.txt", want: false},
		{name: "name at depth", pattern: "foo.txt", path: "alice/a/b/foo.txt", want: true},
		{name: "extension", pattern: "*.tmp", path: "alice/upload.tmp", want: true},
		{name: "extension no match", pattern: "*.tmp", path: "alice/upload.txt", want: false},
		{name: "question mark", pattern: "file?.txt", path: "file1.txt", want: true},
		{name: "question mark one char only", pattern: "file?.txt", path: "file12.txt", want: false},
		{name: "character class", pattern: "v[0-9].bin", path: "v3.bin", want: true},
		{name: "negated class", pattern: "v[!0-9].bin", path: "v3.bin", want: false},
		{name: "office lock file", pattern: "~$*", path: "alice/~$report.docx", want: true},
		{name: "dotfile", pattern: ".*", path: "alice/.DS_Store", want: true},
		{name: "dot is literal", pattern: "a.b", path: "axb", want: false},
		{name: "rooted", pattern: "/alice/tmp", path: "alice/tmp", isDir: true, want: true},
		{name: "rooted not at depth", pattern: "/tmp", path: "alice/tmp", isDir: true, want: false},
		{name: "middle slash anchors", pattern: "alice/cache", path: "bob/alice/cache", want: false},
		{name: "double star prefix", pattern: "**/build", path: "alice/x/build", isDir: true, want: true},
		{name: "double star middle", pattern: "docs/**/*.bak", path: "docs/a/b/c.bak", want: true},
		{name: "double star middle zero dirs", pattern: "docs/**/*.bak", path: "docs/c.bak", want: true},
		{name: "double star suffix", pattern: "alice/**", path: "alice/x/y", want: true},
		{name: "non ascii", pattern: "草稿*", path: "alice/草稿1.txt", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustNew(t, tt.pattern)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatch_DirectoryOnly(t *testing.T) {
	// Given: a directory-only pattern
	m := mustNew(t, "cache/")

	// Then: directories and their contents match, files of that name do not
	assert.True(t, m.Match("alice/cache", true))
	assert.True(t, m.Match("alice/cache/a.png", false))
	assert.False(t, m.Match("alice/cache", false))
}

func TestMatch_IgnoredParentHidesChildren(t *testing.T) {
	// Given: an ignored directory and a negation for a file inside it
	m := mustNew(t, "tmp/", "!tmp/keep.txt")

	// Then: the file stays hidden
	assert.True(t, m.Match("tmp/keep.txt", false))
}

func TestMatch_NegationLastRuleWins(t *testing.T) {
	// Given: an exclusion and a later re-inclusion
	m := mustNew(t, "*.log", "!important.log")

	// Then: the re-included file is visible and the others are not
	assert.False(t, m.Match("alice/important.log", false))
	assert.True(t, m.Match("alice/debug.log", false))

	// Given: the rules in the opposite order
	m = mustNew(t, "!important.log", "*.log")

	// Then: the later exclusion wins
	assert.True(t, m.Match("alice/important.log", false))
}

func TestMatch_Escapes(t *testing.T) {
	m := mustNew(t, `\#notes`, `\!bang`, `trailing\ `)

	assert.True(t, m.Match("#notes", false))
	assert.True(t, m.Match("!bang", false))
	assert.True(t, m.Match("trailing ", false))
	assert.False(t, m.Match("trailing", false))
}

func TestMatch_EdgeCases(t *testing.T) {
	// Given: a matcher with blank lines and comments only
	m := mustNew(t, "", "   ", "# comment")

	// Then: nothing is compiled and nothing matches
	assert.Zero(t, m.Len())
	assert.False(t, m.Match("anything", false))

	// Then: the root itself is never ignored
	m = mustNew(t, "*")
	assert.False(t, m.Match("", true))
	assert.False(t, m.Match(".", true))
}

func TestMatch_NormalisesPaths(t *testing.T) {
	m := mustNew(t, "/alice/tmp/")

	assert.True(t, m.Match("/alice/tmp/", true))
	assert.True(t, m.Match("alice//tmp/x", false))
	assert.True(t, m.Match(filepath.Join("alice", "tmp", "x"), false))
}

func TestNew_InvalidPattern(t *testing.T) {
	// When: compiling an empty character class
	_, err := New("[]")

	// Then: the pattern is rejected
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ignore pattern")
}

func TestDefaultPatterns(t *testing.T) {
	m := mustNew(t, DefaultPatterns...)

	for _, p := range []string{".driveignore", "alice/.git/config", "alice/notes.txt~", "alice/~$memo.docx", "alice/a.tmp", "alice/video.mp4.part", "alice/x.crdownload"} {
		assert.True(t, m.Match(p, false), p)
	}
	for _, p := range []string{"alice/notes.txt", "alice/docs/report.pdf"} {
		assert.False(t, m.Match(p, false), p)
	}
}

func TestAddFile(t *testing.T) {
	// Given: an ignore file with comments and patterns
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("# drafts\n*.draft\n\nscratch/\n"), 0o644))

	// When: loading it
	m := mustNew(t)
	require.NoError(t, m.AddFile(path, ""))

	// Then: both patterns apply
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Match("alice/a.draft", false))
	assert.True(t, m.Match("alice/scratch/b.txt", false))
}

func TestAddFile_Missing(t *testing.T) {
	err := mustNew(t).AddFile(filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)
}

func TestAddFile_ReportsLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("ok\n[]\n"), 0o644))

	err := mustNew(t).AddFile(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")
}

func TestLoad_RootAndOwnerFiles(t *testing.T) {
	// Given: a root ignore file and one owner's ignore file
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alice"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bob"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("*.iso\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alice", FileName), []byte("/private/\n"), 0o644))

	// When: loading the matcher with configured patterns
	m, err := Load(root, []string{"*.tmp"})
	require.NoError(t, err)

	// Then: configured and root rules apply everywhere
	assert.True(t, m.Match("bob/a.tmp", false))
	assert.True(t, m.Match("bob/disk.iso", false))

	// Then: the owner's rule applies only in that owner's tree
	assert.True(t, m.Match("alice/private/diary.txt", false))
	assert.False(t, m.Match("bob/private/diary.txt", false))
}

func TestLoad_MissingRoot(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "missing"), DefaultPatterns)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultPatterns), m.Len())
}

func TestMatcher_ConcurrentUse(t *testing.T) {
	m := mustNew(t, "*.tmp")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Match("alice/x.tmp", false)
			}
		}()
		go func() {
			defer wg.Done()
			_ = m.Add("*.bak")
		}()
	}
	wg.Wait()

	assert.True(t, m.Match("alice/x.bak", false))
}
