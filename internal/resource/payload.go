package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"leadboard/internal/security"
)

// Payload is a create or update body bound to the collection it targets.
// Fields holds every field of the body; Unknown lists the ones the
// collection has no rule for and which are forwarded as-is.
type Payload struct {
	Collection Collection
	Fields     Record
	Unknown    []string
}

// DecodeBody parses a JSON object body. Empty, malformed or non-object
// bodies decode to an empty record rather than an error.
func DecodeBody(raw []byte) Record {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Record{}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil || rec == nil {
		return Record{}
	}
	return rec
}

// NewPayload validates fields against the collection's rules.
func NewPayload(c Collection, fields Record) (*Payload, error) {
	schema, ok := schemas[c]
	if !ok {
		return nil, fmt.Errorf("unknown collection '%s'", c)
	}

	p := &Payload{Collection: c, Fields: fields}
	for _, name := range fields.Fields() {
		if err := security.ValidateFieldName(name); err != nil {
			return nil, err
		}

		kind, known := schema[name]
		if !known {
			p.Unknown = append(p.Unknown, name)
			continue
		}

		value := fields[name]
		if value == nil {
			continue
		}
		if err := checkKind(kind, value); err != nil {
			return nil, fmt.Errorf("field '%s' must be %s: %w", name, kind, err)
		}
	}

	return p, nil
}

// ForUpdate returns the fields to apply in a partial update. The identity
// is never rewritten by a patch.
func (p *Payload) ForUpdate() Record {
	out := p.Fields.Clone()
	delete(out, "id")
	return out
}

func checkKind(kind fieldKind, value any) error {
	switch kind {
	case kindString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("got %s", jsonType(value))
		}
	case kindID:
		switch v := value.(type) {
		case string:
			if v == "" {
				return fmt.Errorf("got an empty string")
			}
		default:
			if _, err := toInteger(value); err != nil {
				return err
			}
		}
	case kindInteger:
		if _, err := toInteger(value); err != nil {
			return err
		}
	case kindNonNegativeInteger:
		n, err := toInteger(value)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("got %d", n)
		}
	case kindNumber:
		if _, err := toFloat(value); err != nil {
			return err
		}
	case kindMessages:
		return checkMessages(value)
	}
	return nil
}

func checkMessages(value any) error {
	list, ok := value.([]any)
	if !ok {
		return fmt.Errorf("got %s", jsonType(value))
	}
	for i, item := range list {
		msg, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("messages[%d] is %s", i, jsonType(item))
		}
		sender, _ := msg["sender"].(string)
		if sender != SenderUser && sender != SenderLead {
			return fmt.Errorf("messages[%d].sender must be '%s' or '%s'", i, SenderUser, SenderLead)
		}
		if text, ok := msg["text"]; ok && text != nil {
			if _, isString := text.(string); !isString {
				return fmt.Errorf("messages[%d].text is %s", i, jsonType(text))
			}
		}
	}
	return nil
}

func toInteger(value any) (int64, error) {
	switch v := value.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("got %s", v)
		}
		return n, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("got %v", v)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	}
	return 0, fmt.Errorf("got %s", jsonType(value))
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case json.Number:
		return v.Float64()
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("got %s", jsonType(value))
}

func jsonType(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number, float64, int, int64:
		return "a number"
	case []any:
		return "a list"
	case map[string]any:
		return "an object"
	}
	return fmt.Sprintf("%T", value)
}
