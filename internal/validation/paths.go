// Package validation checks local file names and paths before they are staged or written.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFilenameLength is the longest document name the portal stores.
const MaxFilenameLength = 255

// ValidateFilename validates a document name (not a full path).
//
// Returns an error if the filename:
//   - Is empty or only whitespace
//   - Contains path separators (/ or \)
//   - Is "." or ".."
//   - Contains null bytes or other control characters
//   - Is longer than MaxFilenameLength characters
func ValidateFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	if strings.ContainsRune(filename, '/') || strings.ContainsRune(filename, '\\') {
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	}

	if filename == "." || filename == ".." {
		return fmt.Errorf("filename cannot be %q", filename)
	}

	for _, r := range filename {
		if r == 0 {
			return fmt.Errorf("filename contains null byte: %q", filename)
		}
		if unicode.IsControl(r) {
			return fmt.Errorf("filename contains control characters: %q", filename)
		}
	}

	if n := utf8.RuneCountInString(filename); n > MaxFilenameLength {
		return fmt.Errorf("filename is %d characters, limit is %d", n, MaxFilenameLength)
	}

	return nil
}

// ValidatePathInDirectory validates that a path, when resolved, stays within baseDir.
// Relative paths are resolved against baseDir.
//
// Example:
//
//	ValidatePathInDirectory("../../etc/passwd", "/tmp/previews") // Error: escapes base dir
//	ValidatePathInDirectory("w2.pdf.preview", "/tmp/previews")   // OK: within base dir
func ValidatePathInDirectory(path string, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	base, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}

	return nil
}
