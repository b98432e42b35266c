// Package search builds boolean query filters in the shape the search
// backend consumes. Policies combine these fragments and hand them to the
// backend verbatim; nothing in this package executes searches.
package search

import "encoding/json"

// Query is a filter fragment over indexed records.
type Query interface {
	json.Marshaler
}

// Term matches records whose field equals the given value exactly.
type Term struct {
	Field string
	Value any
}

// MarshalJSON renders {"term": {field: value}}.
func (q Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"term": map[string]any{q.Field: q.Value}})
}

// Terms matches records whose field equals any of the given values.
type Terms struct {
	Field  string
	Values []any
}

// MarshalJSON renders {"terms": {field: values}}.
func (q Terms) MarshalJSON() ([]byte, error) {
	values := q.Values
	if values == nil {
		values = []any{}
	}
	return json.Marshal(map[string]any{"terms": map[string]any{q.Field: values}})
}

// Match matches records whose analyzed field matches the given value.
type Match struct {
	Field string
	Value any
}

// MarshalJSON renders {"match": {field: value}}.
func (q Match) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"match": map[string]any{q.Field: q.Value}})
}

// MatchAll matches every record.
type MatchAll struct{}

// MarshalJSON renders {"match_all": {}}.
func (MatchAll) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"match_all": map[string]any{}})
}

// MatchNone matches no record.
type MatchNone struct{}

// MarshalJSON renders {"match_none": {}}.
func (MatchNone) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"match_none": map[string]any{}})
}

// Bool combines sub-queries: a record matches when every Must clause
// matches, at least one Should clause matches (if any are present), and no
// MustNot clause matches.
type Bool struct {
	Must    []Query
	Should  []Query
	MustNot []Query
}

// MarshalJSON renders the boolean query object.
func (q Bool) MarshalJSON() ([]byte, error) {
	clauses := make(map[string]any, 3)
	if len(q.Must) > 0 {
		clauses["must"] = q.Must
	}
	if len(q.Should) > 0 {
		clauses["should"] = q.Should
		clauses["minimum_should_match"] = 1
	}
	if len(q.MustNot) > 0 {
		clauses["must_not"] = q.MustNot
	}
	return json.Marshal(map[string]any{"bool": clauses})
}

// And combines queries so that a record must satisfy all of them. Nil
// fragments contribute no constraint. Returns nil when every input is nil.
func And(queries ...Query) Query {
	var present []Query
	for _, q := range queries {
		if q != nil {
			present = append(present, q)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	}
	return Bool{Must: present}
}

// Or combines queries so that a record may satisfy any of them. Nil
// fragments are dropped. Returns nil when every input is nil.
func Or(queries ...Query) Query {
	var present []Query
	for _, q := range queries {
		if q != nil {
			present = append(present, q)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	}
	return Bool{Should: present}
}

// Not negates a query. Returns nil for a nil input.
func Not(q Query) Query {
	if q == nil {
		return nil
	}
	return Bool{MustNot: []Query{q}}
}
