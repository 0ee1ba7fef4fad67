package utils

func AssertInvariant(condition bool, message string) {
	if !condition {
		panic("invariant violated - " + message)
	}
}

// RedactTail keeps the first n characters of a non-secret identifier for
// logging and replaces the rest with "...". Secrets themselves must never
// be passed through this - log presence booleans instead.
func RedactTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// TruncateString shortens a string to at most max characters for log output.
func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
