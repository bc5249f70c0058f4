package audittrail

import (
	"encoding/json"
	"strings"
)

// PayloadKind identifies which shape an entry's change payload resolved to.
type PayloadKind uint8

const (
	PayloadAbsent PayloadKind = iota
	PayloadRaw
	PayloadStructured
	PayloadChangeList
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadRaw:
		return "raw"
	case PayloadStructured:
		return "structured"
	case PayloadChangeList:
		return "change_list"
	default:
		return "absent"
	}
}

// Payload is the resolved change payload of an entry. Exactly one of Raw, Value
// or Changes is meaningful, selected by Kind.
type Payload struct {
	Kind    PayloadKind
	Raw     string
	Value   any
	Changes []Change
}

// HasDetail reports whether a field-level change list is available.
func (p Payload) HasDetail() bool {
	return p.Kind == PayloadChangeList
}

// Parse turns a raw changes field into a structured value.
//
// nil and empty input yield nil. Non-string input is returned unchanged. Strings
// are trimmed and JSON-decoded; when decoding fails the original string is
// returned untouched.
func Parse(raw any) any {
	var s string
	switch t := raw.(type) {
	case nil:
		return nil
	case Value:
		if t.IsAbsent() {
			return nil
		}
		return Parse(t.Data)
	case string:
		s = t
	case []byte:
		if t == nil {
			return nil
		}
		s = string(t)
	case json.RawMessage:
		if t == nil {
			return nil
		}
		s = string(t)
	default:
		return raw
	}

	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	decoded, err := decodeJSON([]byte(trimmed))
	if err != nil {
		return s
	}
	return decoded
}

// classify maps a parsed value onto a payload variant.
func classify(parsed any) Payload {
	switch t := parsed.(type) {
	case nil:
		return Payload{Kind: PayloadAbsent}
	case string:
		return Payload{Kind: PayloadRaw, Raw: t}
	}
	if isNil(parsed) {
		return Payload{Kind: PayloadAbsent}
	}
	return Payload{Kind: PayloadStructured, Value: parsed}
}

// beforeAfter extracts the snapshot pair from a parsed payload when both sides
// are objects.
func beforeAfter(parsed any) (before, after *Object, ok bool) {
	obj, isObj := asObject(parsed)
	if !isObj {
		return nil, nil, false
	}
	rawBefore, hasBefore := obj.Get("before")
	rawAfter, hasAfter := obj.Get("after")
	if !hasBefore || !hasAfter {
		return nil, nil, false
	}
	before, okBefore := asObject(rawBefore)
	after, okAfter := asObject(rawAfter)
	if !okBefore || !okAfter {
		return nil, nil, false
	}
	return before, after, true
}
