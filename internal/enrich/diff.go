package enrich

import "strings"

// NoCodeChanges is written when a message carries no code. Readers match it
// exactly.
const NoCodeChanges = "// No code changes detected"

// FormatDiff renders the sides that are present under "// Before:" and
// "// After:" headings. Blank sides count as absent.
func FormatDiff(before, after *string) string {
	var parts []string
	if present(before) {
		parts = append(parts, "// Before:\n"+*before)
	}
	if present(after) {
		parts = append(parts, "// After:\n"+*after)
	}
	if len(parts) == 0 {
		return NoCodeChanges
	}
	return strings.Join(parts, "\n\n")
}

// FormatCode prefers the before/after pair and falls back to rendering
// codeChanges as the after side.
func FormatCode(before, after, codeChanges *string) string {
	if present(before) || present(after) {
		return FormatDiff(before, after)
	}
	if present(codeChanges) {
		return FormatDiff(nil, codeChanges)
	}
	return NoCodeChanges
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
