package conversation

import (
	"regexp"
	"strings"
)

var filePattern = regexp.MustCompile(`(?i)(?:^|[\s"'(\x60\[])((?:[a-z0-9_\-.]+/)*[a-z0-9_\-][a-z0-9_\-.]*\.(?:html|js|py|ts|css|json|md|go))\b`)

// FilesMentioned returns the distinct file names referenced in messages, in
// first-seen order.
func FilesMentioned(messages []RawMessage) []string {
	seen := make(map[string]bool)
	files := []string{}
	for _, m := range messages {
		for _, match := range filePattern.FindAllStringSubmatch(m.Content, -1) {
			name := strings.TrimPrefix(match[1], "./")
			if !seen[name] {
				seen[name] = true
				files = append(files, name)
			}
		}
	}
	return files
}

// Participants returns the distinct roles in messages, in first-seen order.
func Participants(messages []RawMessage) []Role {
	seen := make(map[Role]bool)
	roles := []Role{}
	for _, m := range messages {
		r := m.Role
		if r == "" {
			r = RoleUnknown
		}
		if !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}
	return roles
}
