// Package filter selects local files for staging. Explicit file arguments are
// always kept; directories contribute the files under them that pass the
// include, exclude and search rules.
package filter

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Config holds filter configuration.
type Config struct {
	// Include patterns (glob-style, ** crosses directories). Empty means include all.
	// Example: []string{"*.pdf", "w2/**"}
	Include []string

	// Exclude patterns. Takes precedence over Include.
	Exclude []string

	// Search terms (case-insensitive substring match on the file name).
	// A file must match every term.
	Search []string

	// Recursive walks subdirectories of directory arguments.
	Recursive bool
}

// Empty reports whether the config lets everything through.
func (c Config) Empty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0 && len(c.Search) == 0
}

// Match checks relPath (slash or OS separated, relative to the directory
// being expanded) against the rules. Patterns are tried against both the
// relative path and the base name.
func (c Config) Match(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	base := filepath.Base(relPath)

	for _, pattern := range c.Exclude {
		if matchesEither(pattern, relPath, base) {
			return false
		}
	}

	if len(c.Include) > 0 {
		included := false
		for _, pattern := range c.Include {
			if matchesEither(pattern, relPath, base) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	lower := strings.ToLower(base)
	for _, term := range c.Search {
		if !strings.Contains(lower, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

func matchesEither(pattern, relPath, base string) bool {
	pattern = filepath.ToSlash(pattern)
	return matchPathPattern(relPath, pattern) || matchPathPattern(base, pattern)
}

// Expand resolves paths into the files to stage. Hidden entries inside
// directories are skipped. The result keeps argument order; files found in
// a directory are sorted by path.
func Expand(paths []string, cfg Config) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range paths {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(arg)
			continue
		}

		found, err := walkDir(arg, cfg)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			add(p)
		}
	}
	return out, nil
}

func walkDir(root string, cfg Config) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !cfg.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if cfg.Match(rel) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}

// matchPathPattern is filepath.Match with ** spanning any number of
// directories.
func matchPathPattern(path, pattern string) bool {
	if !strings.Contains(pattern, "**") {
		matched, _ := filepath.Match(pattern, path)
		return matched
	}
	if pattern == "**" {
		return true
	}

	parts := strings.Split(path, "/")
	switch {
	case strings.HasPrefix(pattern, "**/"):
		suffix := pattern[3:]
		for i := range parts {
			if matchPathPattern(strings.Join(parts[i:], "/"), suffix) {
				return true
			}
		}
		return false

	case strings.HasSuffix(pattern, "/**"):
		prefix := pattern[:len(pattern)-3]
		for i := 1; i < len(parts); i++ {
			if matched, _ := filepath.Match(prefix, strings.Join(parts[:i], "/")); matched {
				return true
			}
		}
		return false
	}

	if idx := strings.Index(pattern, "/**/"); idx != -1 {
		prefix, suffix := pattern[:idx], pattern[idx+4:]
		for i := 1; i < len(parts); i++ {
			if matched, _ := filepath.Match(prefix, strings.Join(parts[:i], "/")); !matched {
				continue
			}
			for j := i; j < len(parts); j++ {
				if matchPathPattern(strings.Join(parts[j:], "/"), suffix) {
					return true
				}
			}
		}
		return false
	}

	matched, _ := filepath.Match(strings.ReplaceAll(pattern, "**", "*"), path)
	return matched
}

// ParsePatternList splits a comma-separated pattern flag.
// Example: "*.pdf, *.jpg" -> []string{"*.pdf", "*.jpg"}
func ParsePatternList(patternStr string) []string {
	var patterns []string
	for _, p := range strings.Split(patternStr, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}
