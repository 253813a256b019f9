// Package models defines the request, result and persisted shapes shared by
// the services, repositories and transports.
package models

// Row maps column names to values. Values arrive as decoded JSON (string,
// float64, bool, nil, maps and slices) or as native Go values from the store.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Sort orders a read by one column.
type Sort struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

// Filter narrows a read. Equals is a conjunction of column = value terms.
// A zero Limit means no limit.
type Filter struct {
	Equals  map[string]any `json:"equals,omitempty"`
	OrderBy []Sort         `json:"order_by,omitempty"`
	Limit   int            `json:"limit,omitempty"`
}
