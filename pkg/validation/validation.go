// Package validation provides input validation for registry identifiers.
// Everything here runs before any storage key is built from request input,
// so the rules double as path-traversal protection.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Repository name grammar per the distribution spec:
// lowercase letters, digits and separators (., _, -); separators must not
// be adjacent and cannot start or end a component; components are joined
// with "/".
var repoNameRegex = regexp.MustCompile(`^[a-z0-9]+(?:[._-][a-z0-9]+)*(?:/[a-z0-9]+(?:[._-][a-z0-9]+)*)*$`)

// Tag grammar per the distribution spec: starts with a word character,
// then up to 127 characters of [a-zA-Z0-9._-].
var tagRegex = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._-]{0,127}$`)

// Upload UUID grammar: standard UUID form, server-generated but still
// validated before use in storage keys.
var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// MaxRepositoryNameLength is the maximum allowed length for repository names.
const MaxRepositoryNameLength = 256

// ValidateRepositoryName validates a repository name.
func ValidateRepositoryName(name string) error {
	if name == "" {
		return fmt.Errorf("repository name cannot be empty")
	}

	if len(name) > MaxRepositoryNameLength {
		return fmt.Errorf("repository name too long: %d chars (max %d)", len(name), MaxRepositoryNameLength)
	}

	if strings.Contains(name, "..") {
		return fmt.Errorf("repository name contains path traversal sequence")
	}

	if !repoNameRegex.MatchString(name) {
		return fmt.Errorf("invalid repository name format: must contain only lowercase letters, digits, and separators (., _, -)")
	}

	return nil
}

// ValidateTag validates a manifest tag.
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}

	if strings.Contains(tag, "..") {
		return fmt.Errorf("tag contains path traversal sequence")
	}

	if !tagRegex.MatchString(tag) {
		return fmt.Errorf("invalid tag format")
	}

	return nil
}

// ValidateDigest validates an algorithm-tagged content digest string.
func ValidateDigest(s string) error {
	if s == "" {
		return fmt.Errorf("digest cannot be empty")
	}

	if _, err := digest.Parse(s); err != nil {
		return fmt.Errorf("invalid digest format: %w", err)
	}

	return nil
}

// IsDigest reports whether s parses as a content digest.
func IsDigest(s string) bool {
	return ValidateDigest(s) == nil
}

// ValidateUUID validates a blob upload session id.
func ValidateUUID(uuid string) error {
	if uuid == "" {
		return fmt.Errorf("UUID cannot be empty")
	}

	if !uuidRegex.MatchString(uuid) {
		return fmt.Errorf("invalid UUID format")
	}

	return nil
}

// ValidatePathWithinRoot validates that a constructed path stays within the
// root directory. Defense-in-depth after filepath.Join operations.
func ValidatePathWithinRoot(rootDir, fullPath string) error {
	cleanRoot := filepath.Clean(rootDir)
	cleanPath := filepath.Clean(fullPath)

	if !strings.HasPrefix(cleanPath, cleanRoot+string(filepath.Separator)) && cleanPath != cleanRoot {
		return fmt.Errorf("path escapes root directory")
	}

	return nil
}
