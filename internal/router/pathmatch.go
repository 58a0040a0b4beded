package router

import "strings"

// MatchPrefix reports whether requestPath falls under prefix:
// - exact match OR
// - prefix match on a segment boundary ("/path" matches "/path" and "/path/...")
//
// "/" matches everything. Query strings are not considered.
func MatchPrefix(requestPath, prefix string) bool {
	if prefix == "" {
		return false
	}
	if prefix == "/" {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if requestPath == prefix {
		return true
	}
	if strings.HasPrefix(requestPath, prefix) && len(requestPath) > len(prefix) && requestPath[len(prefix)] == '/' {
		return true
	}
	return false
}
