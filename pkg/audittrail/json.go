package audittrail

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/iancoleman/orderedmap"
)

var (
	errCycle       = errors.New("audittrail: cyclic value")
	errInvalidJSON = errors.New("audittrail: invalid JSON document")
)

// decodeJSON decodes a single JSON document. Objects become *Object so key order
// survives at every depth, arrays become []any and numbers float64. The document
// is nested under one key because the ordered map only decodes objects.
func decodeJSON(data []byte) (any, error) {
	if !json.Valid(data) {
		return nil, errInvalidJSON
	}
	wrapped := make([]byte, 0, len(data)+6)
	wrapped = append(wrapped, `{"v":`...)
	wrapped = append(wrapped, data...)
	wrapped = append(wrapped, '}')

	doc := orderedmap.New()
	if err := doc.UnmarshalJSON(wrapped); err != nil {
		return nil, err
	}
	v, _ := doc.Get("v")
	return adopt(v), nil
}

// encodeJSON renders v as JSON. Canonical mode sorts object keys so structurally
// equal values always produce the same bytes; otherwise *Object keeps its order.
// Cycles are reported as errors instead of recursing forever.
func encodeJSON(v any, canonical bool) ([]byte, error) {
	e := &encoder{canonical: canonical, seen: make(map[uintptr]struct{})}
	if err := e.encode(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf       bytes.Buffer
	canonical bool
	seen      map[uintptr]struct{}
}

func (e *encoder) encode(v any) error {
	switch t := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case Value:
		if t.IsAbsent() {
			e.buf.WriteString("null")
			return nil
		}
		return e.encode(t.Data)
	case bool:
		e.buf.WriteString(strconv.FormatBool(t))
	case string:
		e.writeString(t)
	case float64:
		e.writeFloat(t)
	case float32:
		e.writeFloat(float64(t))
	case int:
		e.buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int8:
		e.buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int16:
		e.buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int32:
		e.buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		e.buf.WriteString(strconv.FormatInt(t, 10))
	case uint:
		e.buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint8:
		e.buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint16:
		e.buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint32:
		e.buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		e.buf.WriteString(strconv.FormatUint(t, 10))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			e.writeFloat(f)
		} else {
			e.writeString(t.String())
		}
	case json.RawMessage:
		decoded, err := decodeJSON(t)
		if err != nil {
			return err
		}
		return e.encode(decoded)
	case *Object:
		if t == nil {
			e.buf.WriteString("null")
			return nil
		}
		return e.encodeObject(reflect.ValueOf(t).Pointer(), t.Keys(), t.valueMap())
	case map[string]any:
		if t == nil {
			e.buf.WriteString("null")
			return nil
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return e.encodeObject(reflect.ValueOf(t).Pointer(), keys, t)
	case []any:
		if t == nil {
			e.buf.WriteString("null")
			return nil
		}
		return e.encodeArray(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		e.buf.Write(raw)
	}
	return nil
}

func (e *encoder) encodeObject(ptr uintptr, keys []string, values map[string]any) error {
	if err := e.enter(ptr); err != nil {
		return err
	}
	defer e.leave(ptr)

	if e.canonical && !sort.StringsAreSorted(keys) {
		keys = append([]string(nil), keys...)
		sort.Strings(keys)
	}
	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.writeString(k)
		e.buf.WriteByte(':')
		if err := e.encode(values[k]); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *encoder) encodeArray(items []any) error {
	if len(items) > 0 {
		ptr := reflect.ValueOf(items).Pointer()
		if err := e.enter(ptr); err != nil {
			return err
		}
		defer e.leave(ptr)
	}
	e.buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(item); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) enter(ptr uintptr) error {
	if _, ok := e.seen[ptr]; ok {
		return errCycle
	}
	e.seen[ptr] = struct{}{}
	return nil
}

func (e *encoder) leave(ptr uintptr) {
	delete(e.seen, ptr)
}

func (e *encoder) writeString(s string) {
	var sb bytes.Buffer
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	e.buf.Write(bytes.TrimRight(sb.Bytes(), "\n"))
}

// writeFloat mirrors JSON.stringify: non-finite numbers become null.
func (e *encoder) writeFloat(f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		e.buf.WriteString("null")
		return
	}
	e.buf.WriteString(formatNumber(f))
}

// formatNumber renders f the way a JSON number is usually displayed: integers
// without a fraction, exponents only for very large or very small magnitudes.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	idx := strings.IndexByte(s, 'e')
	if idx < 0 || idx+2 > len(s) {
		return s
	}
	mantissa, sign, digits := s[:idx], s[idx+1], strings.TrimLeft(s[idx+2:], "0")
	if digits == "" {
		digits = "0"
	}
	return mantissa + "e" + string(sign) + digits
}
