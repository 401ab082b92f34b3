package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// SessionDir returns the relative directory for a session's artifacts.
// Format: sessions/2026-08-30_1530_boundary-prompt-snippet_82f06b15
func SessionDir(sessionID, originalPrompt string) string {
	timestamp := time.Now().Format("2006-01-02_1504")
	shortID := sessionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	sanitized := sanitizeForFilename(originalPrompt, 30)
	return path.Join("sessions", fmt.Sprintf("%s_%s_%s", timestamp, sanitized, shortID))
}

// BatchDir returns the relative directory for a batch run's artifacts.
func BatchDir(startedAt time.Time) string {
	return path.Join("batches", startedAt.Format("2006-01-02_150405"))
}

// sanitizeForFilename converts a string to a safe filename component
func sanitizeForFilename(s string, maxLen int) string {
	s = strings.ToLower(s)

	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '/', r == '\\', r == ':', r == '.', r == '-', r == '_':
			sb.WriteByte('-')
		}
	}
	s = sb.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	if s == "" {
		s = "session"
	}

	return s
}
