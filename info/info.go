// Package info provides utility functions for manipulating info lines returned
// by the modem in response to AT commands.
package info

import "strings"

// HasPrefix returns true if the line begins with the info prefix for the command.
func HasPrefix(line, cmd string) bool {
	return strings.HasPrefix(line, cmd+":")
}

// TrimPrefix removes the command prefix, if any, and any intervening space
// from the info line.
func TrimPrefix(line, cmd string) string {
	return strings.TrimLeft(strings.TrimPrefix(line, cmd+":"), " ")
}

// Fields splits a comma separated info line into its fields.
//
// Commas within double quotes do not split fields, and the quotes are
// removed from quoted fields. Unquoted fields are trimmed of spaces.
func Fields(line string) []string {
	var fields []string
	var f strings.Builder
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			fields = append(fields, strings.TrimSpace(f.String()))
			f.Reset()
		default:
			f.WriteRune(r)
		}
	}
	return append(fields, strings.TrimSpace(f.String()))
}

// Unquote removes a surrounding pair of double quotes, if present.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
