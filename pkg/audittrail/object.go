package audittrail

import (
	"fmt"
	"sort"

	"github.com/iancoleman/orderedmap"
)

// Object is a decoded JSON object that remembers the order its keys appeared in.
// Diff output follows that order, so payloads are never decoded into plain maps.
type Object struct {
	m *orderedmap.OrderedMap
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{m: orderedmap.New()}
}

// ObjectFromMap wraps a plain map. Go maps carry no order, so keys are sorted.
func ObjectFromMap(m map[string]any) *Object {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	obj := NewObject()
	for _, k := range keys {
		obj.Set(k, m[k])
	}
	return obj
}

// Set stores a value. Re-setting an existing key keeps its original position.
func (o *Object) Set(key string, value any) {
	if o.m == nil {
		o.m = orderedmap.New()
	}
	o.m.Set(key, value)
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil || o.m == nil {
		return nil, false
	}
	return o.m.Get(key)
}

// Keys returns a copy of the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil || o.m == nil {
		return nil
	}
	return append([]string(nil), o.m.Keys()...)
}

// Len reports the number of keys.
func (o *Object) Len() int {
	if o == nil || o.m == nil {
		return 0
	}
	return len(o.m.Keys())
}

func (o *Object) valueMap() map[string]any {
	if o == nil || o.m == nil {
		return nil
	}
	return o.m.Values()
}

// MarshalJSON encodes the object keeping key order.
func (o *Object) MarshalJSON() ([]byte, error) {
	return encodeJSON(o, false)
}

// UnmarshalJSON decodes a JSON object keeping key order.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := decodeJSON(data)
	if err != nil {
		return err
	}
	obj, ok := v.(*Object)
	if !ok {
		return fmt.Errorf("audittrail: expected JSON object, got %T", v)
	}
	*o = *obj
	return nil
}

// adopt converts a decoded orderedmap tree in place so every nested object is
// an *Object and type switches over payload values see one object type.
func adopt(v any) any {
	switch t := v.(type) {
	case orderedmap.OrderedMap:
		return adoptMap(&t)
	case *orderedmap.OrderedMap:
		if t == nil {
			return nil
		}
		return adoptMap(t)
	case map[string]any:
		obj := ObjectFromMap(t)
		for _, k := range obj.m.Keys() {
			val, _ := obj.m.Get(k)
			obj.m.Set(k, adopt(val))
		}
		return obj
	case []any:
		for i, item := range t {
			t[i] = adopt(item)
		}
		return t
	}
	return v
}

func adoptMap(m *orderedmap.OrderedMap) *Object {
	for _, k := range m.Keys() {
		val, _ := m.Get(k)
		m.Set(k, adopt(val))
	}
	return &Object{m: m}
}

// asObject views v as an object when it is object-shaped.
func asObject(v any) (*Object, bool) {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return nil, false
		}
		return t, true
	case map[string]any:
		if t == nil {
			return nil, false
		}
		return ObjectFromMap(t), true
	case Value:
		if t.IsAbsent() {
			return nil, false
		}
		return asObject(t.Data)
	}
	return nil, false
}

// IsObjectShaped reports whether v is a non-null JSON object. Arrays do not count.
func IsObjectShaped(v any) bool {
	_, ok := asObject(v)
	return ok
}
