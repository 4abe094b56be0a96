// Package resource describes the CRM collections served by leadboard.
//
// Records are passthrough field sets: the package knows the field types of
// each collection well enough to reject obviously wrong bodies at the
// boundary, but unknown fields are carried through to the store unchanged.
package resource

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Collection names one of the resource tables.
type Collection string

const (
	Leads         Collection = "leads"
	KanbanColumns Collection = "kanban_columns"
	KanbanItems   Collection = "kanban_items"
)

// Collections lists every collection in display order.
var Collections = []Collection{Leads, KanbanColumns, KanbanItems}

// Record is a single row as a field name to value mapping.
type Record map[string]any

// ParseCollection resolves a path segment into a Collection.
func ParseCollection(name string) (Collection, error) {
	for _, c := range Collections {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown collection '%s'", name)
}

// Table returns the backend table name for the collection
func (c Collection) Table() string {
	return string(c)
}

// DefaultOrder returns the field and direction used when a list request
// does not ask for an explicit order.
func (c Collection) DefaultOrder() (field string, desc bool) {
	switch c {
	case Leads:
		return "created_at", true
	case KanbanColumns, KanbanItems:
		return "position", false
	}
	return "", false
}

// ID returns the record identity rendered as a string, or "" if absent.
func (r Record) ID() string {
	v, ok := r["id"]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprint(id)
	}
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge applies patch over r and returns the result; r is not modified.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Fields returns the record's field names sorted, so generated SQL is stable.
func (r Record) Fields() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
