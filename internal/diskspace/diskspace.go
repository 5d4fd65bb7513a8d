// Package diskspace checks free space on the filesystem a download is
// written to.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/driveindex/drive-index/internal/preview"
)

// DefaultMargin is the headroom applied to the required size.
const DefaultMargin = 1.05

// InsufficientSpaceError indicates that a file will not fit on disk.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space for %s: need %s, have %s",
		e.Path, formatBytes(e.RequiredBytes), formatBytes(e.AvailableBytes))
}

// IsInsufficientSpaceError reports whether err wraps an InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var target *InsufficientSpaceError
	return errors.As(err, &target)
}

// Check verifies that requiredBytes times margin fit on the filesystem that
// holds targetPath. targetPath itself does not have to exist. When the free
// space cannot be determined the check passes and the write fails naturally.
func Check(targetPath string, requiredBytes int64, margin float64) error {
	if requiredBytes <= 0 {
		return nil
	}
	if margin < 1 {
		margin = 1
	}

	available, ok := Available(targetPath)
	if !ok {
		return nil
	}

	required := int64(float64(requiredBytes) * margin)
	if available < required {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  required,
			AvailableBytes: available,
		}
	}
	return nil
}

// Available returns the bytes available to the current user on the
// filesystem holding path.
func Available(path string) (int64, bool) {
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	return availableBytes(dir)
}

func formatBytes(n int64) string {
	if s := preview.FormatSize(strconv.FormatInt(n, 10)); s != "" {
		return s
	}
	return "0 B"
}
