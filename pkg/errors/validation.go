package errors

import (
	"strings"
	"unicode"
)

// ValidateFilename validates a client-supplied morphology file name.
// It must be a plain base name so it can be used to derive output names.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters or null bytes
//   - No path separators
//   - Maximum length of 255 characters
func ValidateFilename(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPath, "file name cannot be empty")
	}

	if len(name) > 255 {
		return New(ErrCodeInvalidPath, "file name too long (max 255 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "file name contains invalid control characters")
		}
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidPath, "file name cannot contain path separators")
	}

	if name == "." || name == ".." {
		return New(ErrCodeInvalidPath, "file name cannot be %q", name)
	}

	return nil
}

// ValidatePath validates a relative output path for safety.
// It prevents path traversal and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateSourceURI validates an input location: a local path, an
// s3://bucket/key object or an http(s) URL.
func ValidateSourceURI(uri string) error {
	if uri == "" {
		return New(ErrCodeInvalidInput, "source cannot be empty")
	}
	for _, r := range uri {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "source contains invalid characters")
		}
	}

	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return nil
	}
	switch strings.ToLower(scheme) {
	case "http", "https", "file":
		return nil
	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return New(ErrCodeInvalidInput, "s3 source must be s3://bucket/key")
		}
		return nil
	default:
		return New(ErrCodeInvalidInput, "unsupported source scheme %q (must be http, https, s3 or file)", scheme)
	}
}
