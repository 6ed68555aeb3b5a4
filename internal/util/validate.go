package util

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IsConfigured reports whether all provided values are non-empty.
func IsConfigured(values ...string) bool {
	for _, v := range values {
		if v == "" {
			return false
		}
	}
	return true
}

// ValidatePath rejects empty paths and paths containing traversal components.
func ValidatePath(field, path string) error {
	if path == "" {
		return fmt.Errorf("%s: is required", field)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s: path cannot contain '..'", field)
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("%s: invalid path", field)
	}
	return nil
}

// CheckPathWritable verifies that a directory exists (creating it if needed) and is writable.
func CheckPathWritable(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		slog.Error("path writability check failed", "path", path, "error", err, "step", "mkdir")
		return fmt.Errorf("path %s is not writable", path)
	}

	testFile := filepath.Join(path, fmt.Sprintf(".speakerswitch-write-test-%d", time.Now().UnixNano()))

	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		slog.Error("path writability check failed", "path", path, "error", err, "step", "write")
		return fmt.Errorf("path %s is not writable", path)
	}

	if err := os.Remove(testFile); err != nil {
		slog.Error("path writability check failed", "path", path, "error", err, "step", "remove")
		return fmt.Errorf("path %s is not writable", path)
	}

	return nil
}
