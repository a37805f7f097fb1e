package permission

import "strings"

// Match checks if a grant pattern matches a permission with simple glob
// support. Supports "*" (everything) and a trailing "*" after a namespace
// (e.g., "api.*" matches "api.access"). Used for additive custom grants on
// memberships; expansion is always against the closed permission set, so a
// glob can never grant an unknown permission.
func Match(pattern string, p Permission) bool {
	if pattern == "*" {
		return true
	}
	if pattern == string(p) {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(string(p), prefix)
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(string(p), prefix)
	}
	return false
}

// ExpandGrants resolves a list of grant patterns (exact permissions or
// globs) into the subset of the closed permission set they cover.
func ExpandGrants(patterns []string) Set {
	out := Set{}
	for _, pat := range patterns {
		for _, p := range all {
			if Match(pat, p) {
				out[p] = struct{}{}
			}
		}
	}
	return out
}
