// Package fsutil collects the small cross-platform filesystem helpers every
// region/messaging path construction needs: filename sanitization,
// path-length validation, and a bounded retry wrapper for transient
// filesystem failures.
//
// Grounded on agilira-lethe's config.go, adapted from a rotating-file
// logger's path handling to conduit's shared-memory-region and settings
// path handling: the same OS quirks (antivirus/locking on Windows,
// overlay-filesystem flakiness in containers) apply just as much to
// opening an mmap-backed region file as to opening a log file.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package fsutil

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// SanitizeFilename removes or replaces characters invalid in a filename on
// the current OS, so a caller-supplied Identifier can be turned into a safe
// path component.
func SanitizeFilename(filename string) string {
	if runtime.GOOS == "windows" {
		invalidChars := []string{"<", ">", ":", "\"", "|", "?", "*"}
		result := filename
		for _, char := range invalidChars {
			result = strings.ReplaceAll(result, char, "_")
		}
		var sanitized strings.Builder
		for _, r := range result {
			if r >= 32 {
				sanitized.WriteRune(r)
			} else {
				sanitized.WriteRune('_')
			}
		}
		return sanitized.String()
	}
	return strings.ReplaceAll(filename, "\x00", "_")
}

// ValidatePathLength checks that path's absolute form stays within the
// current OS's path length limit.
func ValidatePathLength(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	pathLen := len(absPath)
	switch runtime.GOOS {
	case "windows":
		if pathLen > 260 {
			return fmt.Errorf("path too long for Windows: %d characters (limit: 260)", pathLen)
		}
	default:
		if pathLen > 4096 {
			return fmt.Errorf("path too long: %d characters (limit: 4096)", pathLen)
		}
	}
	return nil
}

// RetryFileOperation runs operation up to retryCount times in total,
// stopping at the first success, with retryDelay between attempts. Opening a region's backing file
// or a doorbell socket can hit the same transient failures a log file
// open can: antivirus/indexer locks on Windows, brief unavailability on a
// network share, overlay-filesystem quirks in a container.
func RetryFileOperation(operation func() error, retryCount int, retryDelay time.Duration) error {
	if retryCount <= 0 {
		retryCount = 3
	}
	if retryDelay <= 0 {
		retryDelay = 10 * time.Millisecond
	}

	var lastErr error
	for i := 0; i < retryCount; i++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err
		if i < retryCount-1 {
			time.Sleep(retryDelay)
		}
	}
	return fmt.Errorf("operation failed after %d attempts: %w", retryCount, lastErr)
}
