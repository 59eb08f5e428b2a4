// Package ignore decides which paths under a watched root are left out
// of indexing. Rules use gitignore syntax and are read from the root's
// .gitignore and .magicfolderignore files, in that order, so the latter
// can re-include with "!".
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Files are the ignore files read from a root, lowest precedence first.
var Files = []string{".gitignore", ".magicfolderignore"}

type rule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

// Matcher holds compiled rules relative to Root. It is read-only after
// Load and safe for concurrent use.
type Matcher struct {
	Root  string
	rules []rule
}

// Load reads the ignore files under root. Missing files are not an error.
func Load(root string) (*Matcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	m := &Matcher{Root: abs}
	for _, name := range Files {
		if err := m.addFile(filepath.Join(abs, name)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Matcher) addFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read ignore file %s: %w", path, err)
	}
	return nil
}

// Add compiles one pattern line. Blank lines and comments are dropped.
func (m *Matcher) Add(line string) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasSuffix(line, `\ `) {
		line = strings.TrimRight(line, " \t")
	}
	if line == "" || line[0] == '#' {
		return
	}

	var r rule
	switch {
	case line[0] == '!':
		r.negate = true
		line = line[1:]
	case strings.HasPrefix(line, `\!`), strings.HasPrefix(line, `\#`):
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = line[1:]
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		r.anchored = true
	}
	if line == "" {
		return
	}
	r.re = regexp.MustCompile("^" + globRegexp(line) + "$")
	m.rules = append(m.rules, r)
}

// Ignored reports whether path is excluded. Absolute paths are made
// relative to Root; paths outside Root are never ignored. The last
// matching rule wins.
func (m *Matcher) Ignored(path string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(m.Root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return false
		}
		path = rel
	}
	path = filepath.ToSlash(path)

	ignored := false
	for _, r := range m.rules {
		if r.match(path, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// Len is the number of compiled rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

func (r rule) match(path string, isDir bool) bool {
	parts := strings.Split(path, "/")
	// A rule matching any parent directory covers everything below it.
	for i := 1; i <= len(parts); i++ {
		last := i == len(parts)
		if r.dirOnly && last && !isDir {
			return false
		}
		var candidate string
		if r.anchored {
			candidate = strings.Join(parts[:i], "/")
		} else {
			candidate = parts[i-1]
		}
		if r.re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// globRegexp translates gitignore wildcards: "*" and "?" stay within a
// path segment, "**/" spans any number of directories and a trailing
// "/**" everything below.
func globRegexp(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if strings.HasPrefix(glob[i:], "**/") {
				b.WriteString("(?:.*/)?")
				i += 2
			} else if strings.HasPrefix(glob[i:], "**") {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
