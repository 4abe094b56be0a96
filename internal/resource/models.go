package resource

import "sort"

// Message senders
const (
	SenderUser = "user"
	SenderLead = "lead"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindID               // string or integer
	kindInteger
	kindNonNegativeInteger
	kindNumber
	kindMessages
)

func (k fieldKind) String() string {
	switch k {
	case kindString:
		return "a string"
	case kindID:
		return "a string or integer identifier"
	case kindInteger:
		return "an integer"
	case kindNonNegativeInteger:
		return "a non-negative integer"
	case kindNumber:
		return "a number"
	case kindMessages:
		return "a list of messages"
	}
	return "unknown"
}

// schemas holds the known fields of each collection. Fields not listed here
// are passed through without checks.
var schemas = map[Collection]map[string]fieldKind{
	Leads: {
		"id":           kindID,
		"name":         kindString,
		"phone":        kindString,
		"email":        kindString,
		"status":       kindString,
		"last_message": kindString,
		"unread_count": kindNonNegativeInteger,
		"value":        kindNumber,
		"messages":     kindMessages,
		"created_at":   kindString,
	},
	KanbanColumns: {
		"id":       kindID,
		"name":     kindString,
		"position": kindInteger,
	},
	KanbanItems: {
		"id":        kindID,
		"lead_id":   kindID,
		"column_id": kindID,
		"position":  kindInteger,
	},
}

// KnownFields returns the field names validated for a collection, sorted.
func (c Collection) KnownFields() []string {
	names := make([]string, 0, len(schemas[c]))
	for name := range schemas[c] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
