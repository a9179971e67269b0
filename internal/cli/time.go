package cli

import "time"

// buildStartTime returns the current instant as the RFC 3339 timestamp
// recorded in a macOS package's XAR TOC creation-time field.
// Captured once per invocation so every member in one package shares the
// same value.
func buildStartTime() string {
	return time.Now().UTC().Format(time.RFC3339)
}
