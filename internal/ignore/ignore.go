// Package ignore provides the default should_skip(entry) predicate the
// spec treats as an external collaborator: the engine itself only needs a
// func(path string, isDir bool) bool, this package just supplies one
// implementation loading .xcpignore-style glob patterns.
//
// No example in the retrieval pack ships a standalone gitignore-pattern
// matcher; this stays on path/filepath.Match plus a directory-prefix rule
// rather than reaching for a third-party library, since the spec is
// explicit that ignore-matching is out of the core engine's scope.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Matcher holds a set of loaded glob patterns.
type Matcher struct {
	patterns []string
}

// Load reads newline-separated glob patterns from path, skipping blank
// lines and '#' comments. A missing file yields an empty, always-false
// Matcher rather than an error, since having no ignore file is the common
// case.
func Load(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Matcher{}, nil
		}
		return nil, err
	}
	defer f.Close()

	m := &Matcher{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, line)
	}
	return m, scanner.Err()
}

// ShouldSkip reports whether relPath (relative to the copy root, using
// forward slashes) matches any loaded pattern, either as a whole-path glob
// or as a path-component glob anywhere along relPath.
func (m *Matcher) ShouldSkip(relPath string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	parts := strings.Split(relPath, "/")
	for _, pat := range m.patterns {
		if ok, _ := filepath.Match(pat, relPath); ok {
			return true
		}
		for _, part := range parts {
			if ok, _ := filepath.Match(pat, part); ok {
				return true
			}
		}
	}
	return false
}
