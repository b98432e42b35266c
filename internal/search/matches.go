package search

import (
	"fmt"
	"strconv"
)

// Matches evaluates a query fragment against a flat document. It implements
// just enough of the backend's matching semantics for in-memory backends
// and tests; the production backend receives the query verbatim instead.
// A nil query matches everything.
func Matches(q Query, doc map[string]any) bool {
	switch v := q.(type) {
	case nil:
		return true
	case MatchAll:
		return true
	case MatchNone:
		return false
	case Term:
		return valueEqual(doc[v.Field], v.Value)
	case Match:
		return valueEqual(doc[v.Field], v.Value)
	case Terms:
		for _, want := range v.Values {
			if valueEqual(doc[v.Field], want) {
				return true
			}
		}
		return false
	case Bool:
		for _, sub := range v.Must {
			if !Matches(sub, doc) {
				return false
			}
		}
		for _, sub := range v.MustNot {
			if Matches(sub, doc) {
				return false
			}
		}
		if len(v.Should) > 0 {
			for _, sub := range v.Should {
				if Matches(sub, doc) {
					return true
				}
			}
			return false
		}
		return true
	default:
		return false
	}
}

// valueEqual compares document and query values across the numeric and
// string representations that survive JSON round-trips.
func valueEqual(got, want any) bool {
	if got == nil {
		return false
	}
	return canonical(got) == canonical(want)
}

func canonical(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
