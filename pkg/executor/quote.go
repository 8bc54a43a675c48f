package executor

import "strings"

// Quote returns s as a single POSIX shell word. Embedded single quotes are
// closed, escaped and reopened: it's -> 'it'\''s'.
func Quote(s string) string {
	if s != "" && strings.Trim(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-./:=,@%+") == "" {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
