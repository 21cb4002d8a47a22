package dcc

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilename rejects DCC filenames that are empty, contain filesystem
// metacharacters, or would escape the download directory once resolved.
func ValidateFilename(downloadDir, name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if strings.ContainsAny(name, `/\:*?"<>|`) {
		return fmt.Errorf("filename %q contains disallowed characters", name)
	}

	resolved := filepath.Join(downloadDir, name)
	return validatePathInBaseDir(downloadDir, resolved)
}

// validatePathInBaseDir verifies that resolvedPath, once made absolute,
// still lives inside baseDir.
func validatePathInBaseDir(baseDir, resolvedPath string) error {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("resolving download directory: %w", err)
	}
	absResolved, err := filepath.Abs(resolvedPath)
	if err != nil {
		return fmt.Errorf("resolving target path: %w", err)
	}

	rel, err := filepath.Rel(absBase, absResolved)
	if err != nil {
		return fmt.Errorf("path escapes download directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes download directory %q", resolvedPath, baseDir)
	}
	return nil
}
