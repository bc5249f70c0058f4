package audittrail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Conventional action tags. Upstream may emit anything else.
const (
	ActionCreate             = "CREATE"
	ActionUpdate             = "UPDATE"
	ActionDelete             = "DELETE"
	ActionInventoryDecrement = "INVENTORY_DECREMENT"
)

// Envelope markers used by upstream pairing. They are never business fields.
const (
	EnvelopeBefore = "__before__"
	EnvelopeAfter  = "__after__"
)

// ValueState tells a field that was set (possibly to null) apart from one that
// does not exist on that side of a change.
type ValueState uint8

const (
	ValuePresent ValueState = iota
	ValueAbsent
)

// Value is one side of a field change.
type Value struct {
	State ValueState
	Data  any
}

// Present wraps a value that exists, including JSON null.
func Present(data any) Value {
	return Value{State: ValuePresent, Data: data}
}

// Absent marks a field missing from one side of a pair.
func Absent() Value {
	return Value{State: ValueAbsent}
}

// IsAbsent reports whether the field did not exist.
func (v Value) IsAbsent() bool {
	return v.State == ValueAbsent
}

// IsNull reports whether the value is absent or JSON null.
func (v Value) IsNull() bool {
	return v.IsAbsent() || isNil(v.Data)
}

// MarshalJSON encodes the wrapped data; an absent value encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	return encodeJSON(v, false)
}

// Change is one field-level delta.
type Change struct {
	Field  string
	Before Value
	After  Value
}

// MarshalJSON omits before/after when that side is absent and writes null when
// it is present but null, so key presence carries the absent/null distinction.
func (c Change) MarshalJSON() ([]byte, error) {
	obj := NewObject()
	obj.Set("field", c.Field)
	if !c.Before.IsAbsent() {
		obj.Set("before", c.Before.Data)
	}
	if !c.After.IsAbsent() {
		obj.Set("after", c.After.Data)
	}
	return encodeJSON(obj, false)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Change) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Change{Before: Absent(), After: Absent()}
	if field, ok := raw["field"]; ok {
		if err := json.Unmarshal(field, &c.Field); err != nil {
			return fmt.Errorf("audittrail: change field: %w", err)
		}
	}
	for key, dst := range map[string]*Value{"before": &c.Before, "after": &c.After} {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		decoded, err := decodeJSON(msg)
		if err != nil {
			return fmt.Errorf("audittrail: change %s: %w", key, err)
		}
		*dst = Present(decoded)
	}
	return nil
}

// Actor is the embedded actor reference some upstream records carry.
type Actor struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
}

// Entry is one audit record. Changes holds the raw payload as received (string,
// structured value or nil); after normalization it holds the parsed value and
// Payload says which variant it is.
type Entry struct {
	ID         int64      `json:"id"`
	Entity     string     `json:"entity"`
	EntityID   int64      `json:"entityId"`
	Action     string     `json:"action"`
	ActorID    *int64     `json:"actorId,omitempty"`
	ActorName  string     `json:"actorName,omitempty"`
	Actor      *Actor     `json:"actor,omitempty"`
	Changes    any        `json:"changes"`
	ChangeList []Change   `json:"changeList,omitempty"`
	Payload    Payload    `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

// UnmarshalJSON keeps object key order inside changes. A JSON string in changes
// stays a string so the parser sees exactly what upstream sent.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type entryAlias Entry
	aux := struct {
		*entryAlias
		Changes json.RawMessage `json:"changes"`
	}{entryAlias: (*entryAlias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	changes, err := decodeChangesField(aux.Changes)
	if err != nil {
		return fmt.Errorf("audittrail: entry changes: %w", err)
	}
	e.Changes = changes
	return nil
}

func decodeChangesField(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return s, nil
	}
	return decodeJSON(trimmed)
}
