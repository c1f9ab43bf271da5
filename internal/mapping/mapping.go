package mapping

import (
	"maps"
)

// BuildInput projects pipeline state into a worker input payload.
// Path expressions are resolved against state and skipped when absent;
// any other value is copied through as a literal.
//
// When the payload carries a "sources" array, "feed_urls" is derived from it:
// each element's "url" field, or the element itself when it is a string,
// with nil and missing values dropped.
func BuildInput(mapping map[string]any, state map[string]any) map[string]any {
	input := make(map[string]any, len(mapping)+1)
	for dest, src := range mapping {
		if path, ok := PathExpr(src); ok {
			if v, found := ResolvePath(state, path); found {
				input[dest] = v
			}
			continue
		}
		input[dest] = src
	}

	if sources, ok := input["sources"].([]any); ok {
		input["feed_urls"] = feedURLs(sources)
	}

	return input
}

func feedURLs(sources []any) []any {
	urls := make([]any, 0, len(sources))
	for _, src := range sources {
		var u any
		switch v := src.(type) {
		case string:
			u = v
		case map[string]any:
			u = v["url"]
		}
		if u != nil {
			urls = append(urls, u)
		}
	}
	return urls
}

// FoldOutput merges a worker response into a copy of the pipeline state.
// Each path expression in the mapping is resolved against body; a path the
// response does not contain leaves the state key absent. Literal values in an
// output mapping are ignored. The input state is never modified.
//
// After merging, "all_sources" is set to "sources" followed by
// "additional_sources" when both are arrays, or to "sources" alone when only
// that key is present.
func FoldOutput(mapping map[string]any, body any, state map[string]any) map[string]any {
	next := make(map[string]any, len(state)+len(mapping))
	maps.Copy(next, state)

	for key, src := range mapping {
		path, ok := PathExpr(src)
		if !ok {
			continue
		}
		if v, found := ResolvePath(body, path); found {
			next[key] = v
		} else {
			delete(next, key)
		}
	}

	sources, hasSources := next["sources"]
	srcList, srcIsList := sources.([]any)
	extra, extraIsList := next["additional_sources"].([]any)
	switch {
	case srcIsList && extraIsList:
		all := make([]any, 0, len(srcList)+len(extra))
		all = append(all, srcList...)
		next["all_sources"] = append(all, extra...)
	case hasSources:
		next["all_sources"] = sources
	}

	return next
}
