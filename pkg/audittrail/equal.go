package audittrail

import (
	"encoding/json"
	"reflect"
	"strconv"
)

type typeTag uint8

const (
	tagNull typeTag = iota
	tagBool
	tagNumber
	tagString
	tagObject
)

// Equal compares two change sides structurally. Absent and null are equal to
// each other and to nothing else.
func Equal(x, y Value) bool {
	return EqualAny(unwrap(x), unwrap(y))
}

// EqualAny is structural equality over arbitrary JSON-like values. It never
// panics: values that cannot be serialized compare unequal.
//
// Values with different type tags are unequal even when they print the same, so
// the number 5 and the string "5" are reported as different.
func EqualAny(x, y any) bool {
	x, y = unwrapAny(x), unwrapAny(y)
	if identical(x, y) {
		return true
	}
	if isNil(x) || isNil(y) {
		return isNil(x) && isNil(y)
	}
	tx, ty := tagOf(x), tagOf(y)
	if tx != ty {
		return false
	}
	if tx != tagObject {
		return scalarString(x) == scalarString(y)
	}
	a, err := encodeJSON(x, true)
	if err != nil {
		return false
	}
	b, err := encodeJSON(y, true)
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

func unwrap(v Value) any {
	if v.IsAbsent() {
		return nil
	}
	return v.Data
}

func unwrapAny(v any) any {
	if val, ok := v.(Value); ok {
		return unwrap(val)
	}
	return v
}

// identical covers the same-primitive and same-reference cases.
func identical(x, y any) bool {
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	vx, vy := reflect.ValueOf(x), reflect.ValueOf(y)
	if vx.Type() != vy.Type() {
		return false
	}
	switch vx.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return vx.Pointer() == vy.Pointer()
	case reflect.Slice:
		return vx.Len() == vy.Len() && vx.Pointer() == vy.Pointer()
	case reflect.Func:
		return false
	}
	if !vx.Type().Comparable() {
		return false
	}
	return safeEquals(x, y)
}

func safeEquals(x, y any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return x == y
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case Value:
		return t.IsNull()
	case *Object:
		return t == nil
	case map[string]any:
		return t == nil
	case []any:
		return t == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func tagOf(v any) typeTag {
	if isNil(v) {
		return tagNull
	}
	switch v.(type) {
	case bool:
		return tagBool
	case string:
		return tagString
	case json.Number:
		return tagNumber
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return tagNumber
	case reflect.Bool:
		return tagBool
	case reflect.String:
		return tagString
	}
	return tagObject
}

// scalarString is the string coercion used for same-tag scalars.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	}
	if f, ok := numberValue(v); ok {
		return formatNumber(f)
	}
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	}
	return ""
}

// numberValue extracts a float64 from any numeric Go value.
func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
