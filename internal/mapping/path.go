// Package mapping moves data between pipeline state and worker payloads and
// decides whether a step's conditions allow it to run.
//
// Every function here is total: missing keys, nil roots and non-container
// values resolve to "absent" instead of returning an error or panicking.
package mapping

import "strings"

// PathPrefix marks a mapping value as a path expression rather than a literal.
const PathPrefix = "$."

// ResolvePath walks root along a dot-separated field path. It reports false
// when any segment is missing or a non-object value is reached before the
// path ends. An empty path resolves to root itself.
func ResolvePath(root any, path string) (any, bool) {
	if root == nil {
		return nil, false
	}
	if path == "" {
		return root, true
	}

	cur := root
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := obj[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// PathExpr returns the field path of a "$."-prefixed mapping value.
// Literals (non-strings, or strings without the prefix) report false.
func PathExpr(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, PathPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, PathPrefix), true
}
