package invoker

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnknownBinding is returned when a binding reference cannot be resolved.
var ErrUnknownBinding = errors.New("unknown worker binding")

// Resolver turns a worker's opaque binding reference into a base URL.
type Resolver interface {
	Resolve(ref string) (string, error)
}

// StaticResolver resolves bindings from a fixed ref -> base URL table.
// A reference that is already an absolute http(s) URL resolves to itself.
type StaticResolver map[string]string

// Resolve implements Resolver.
func (s StaticResolver) Resolve(ref string) (string, error) {
	if base, ok := s[ref]; ok && base != "" {
		return base, nil
	}
	if isAbsoluteURL(ref) {
		return ref, nil
	}
	return "", fmt.Errorf("resolve %q: %w", ref, ErrUnknownBinding)
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// joinURL appends an endpoint path to a base URL with exactly one slash between them.
func joinURL(base, endpoint string) string {
	if endpoint == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
