// Package ignore decides which paths below the storage root are invisible
// to indexing and watching.
//
// Patterns use gitignore syntax:
//
//	*.tmp        any entry named *.tmp, at any depth
//	/alice/tmp   rooted at the storage root
//	cache/       directories only
//	!keep.tmp    re-include an entry a previous pattern hid
//	docs/**/*.bak
//
// An ignored directory hides everything below it; a negation cannot bring
// back an entry whose parent is ignored. Patterns come from configuration,
// from <root>/.driveignore and from <root>/<owner>/.driveignore, the last
// applying only inside that owner's tree.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// FileName is the per-directory ignore file.
const FileName = ".driveignore"

// DefaultPatterns hide dotfiles, editor backups and partial uploads.
var DefaultPatterns = []string{".*", "*~", "~$*", "*.tmp", "*.part", "*.crdownload"}

// Matcher holds compiled rules. It is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	source   string
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	base     string
}

// New compiles patterns into a Matcher.
func New(patterns ...string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		if err := m.Add(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Load builds the matcher for a storage root: patterns, then the root's
// ignore file, then each owner's ignore file. Missing files are skipped.
func Load(root string, patterns []string) (*Matcher, error) {
	m, err := New(patterns...)
	if err != nil {
		return nil, err
	}
	if err := m.addFileIfExists(filepath.Join(root, FileName), ""); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to list storage root: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || m.Match(e.Name(), true) {
			continue
		}
		if err := m.addFileIfExists(filepath.Join(root, e.Name(), FileName), e.Name()); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add compiles one pattern. Blank lines and comments are accepted and
// ignored.
func (m *Matcher) Add(pattern string) error {
	return m.AddWithBase(pattern, "")
}

// AddWithBase compiles a pattern that applies only below base, a
// slash-separated directory relative to the root.
func (m *Matcher) AddWithBase(pattern, base string) error {
	r, ok, err := parse(pattern)
	if err != nil || !ok {
		return err
	}
	r.base = strings.Trim(filepath.ToSlash(base), "/")

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
	return nil
}

// AddFile reads one pattern per line from path.
func (m *Matcher) AddFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if err := m.AddWithBase(scanner.Text(), base); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}
	return nil
}

func (m *Matcher) addFileIfExists(path, base string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return m.AddFile(path, base)
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether rel, a slash-separated path relative to the root,
// is ignored. isDir tells whether rel itself is a directory.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.Trim(path.Clean("/"+filepath.ToSlash(rel)), "/")
	if rel == "" {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' && m.matchOne(rel[:i], true) {
			return true
		}
	}
	return m.matchOne(rel, isDir)
}

// matchOne applies the rules to p alone; the last matching rule wins.
func (m *Matcher) matchOne(p string, isDir bool) bool {
	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		sub := p
		if r.base != "" {
			if !strings.HasPrefix(p, r.base+"/") {
				continue
			}
			sub = p[len(r.base)+1:]
		}
		target := sub
		if !r.anchored {
			target = path.Base(sub)
		}
		if r.re.MatchString(target) {
			ignored = !r.negate
		}
	}
	return ignored
}

// parse compiles one pattern line. ok is false for blank lines and
// comments.
func parse(line string) (r rule, ok bool, err error) {
	escapedSpace := strings.HasSuffix(line, `\ `)
	p := strings.TrimSpace(line)
	if p == "" || strings.HasPrefix(p, "#") {
		return r, false, nil
	}
	r.source = p

	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}
	if escapedSpace && strings.HasSuffix(p, `\`) {
		p = strings.TrimSuffix(p, `\`) + " "
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}
	if strings.Contains(p, "/") {
		r.anchored = true
		p = strings.TrimPrefix(p, "/")
	}
	if p == "" {
		return r, false, nil
	}

	r.re, err = regexp.Compile("^" + toRegexp(p) + "$")
	if err != nil {
		return r, false, fmt.Errorf("invalid ignore pattern %q: %w", r.source, err)
	}
	return r, true, nil
}

// regexpMeta lists the bytes with a meaning in regular expressions.
const regexpMeta = `\.+*?()|[]{}^$`

// writeLiteral writes c so that it matches itself. Bytes of multi-byte
// characters pass through unchanged.
func writeLiteral(b *strings.Builder, c byte) {
	if strings.IndexByte(regexpMeta, c) >= 0 {
		b.WriteByte('\\')
	}
	b.WriteByte(c)
}

// toRegexp translates glob syntax to a regular expression.
func toRegexp(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch c {
		case '*':
			if i+1 < len(p) && p[i+1] == '*' && (i == 0 || p[i-1] == '/') {
				if i+2 < len(p) && p[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				if i+2 == len(p) {
					b.WriteString(".*")
					i++
					continue
				}
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(p[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := p[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(p) {
				i++
			}
			writeLiteral(&b, p[i])
		default:
			writeLiteral(&b, c)
		}
	}
	return b.String()
}
