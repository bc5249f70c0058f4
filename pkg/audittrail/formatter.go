package audittrail

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// Placeholder is rendered for null, absent and empty values.
const Placeholder = "—"

// DirectorySource resolves reference ids to labels.
type DirectorySource interface {
	Lookup(domain Domain, id int64) (string, bool)
}

// DomainMap routes normalized field names to reference domains.
type DomainMap map[string]Domain

// DefaultDomainMap returns the built-in foreign-key routing.
func DefaultDomainMap() DomainMap {
	return DomainMap{
		"accountmanagerid": DomainUser,
		"interviewerid":    DomainUser,
		"clientid":         DomainClient,
		"hubid":            DomainHub,
		"zoneid":           DomainZone,
	}
}

// Resolve returns the domain for a raw field name, if any.
func (m DomainMap) Resolve(field string) (Domain, bool) {
	domain, ok := m[NormalizeFieldName(field)]
	return domain, ok
}

// NormalizeFieldName lower-cases a field and strips underscores and whitespace.
func NormalizeFieldName(field string) string {
	var sb strings.Builder
	sb.Grow(len(field))
	for _, r := range field {
		if r == '_' || unicode.IsSpace(r) {
			continue
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

// Formatter renders single change values for display.
type Formatter struct {
	domains   DomainMap
	directory DirectorySource
}

// NewFormatter builds a formatter. A nil domain map uses the defaults.
func NewFormatter(domains DomainMap, directory DirectorySource) *Formatter {
	if domains == nil {
		domains = DefaultDomainMap()
	}
	return &Formatter{domains: domains, directory: directory}
}

// Format renders one side of a change.
func (f *Formatter) Format(v Value, field string) string {
	if v.IsAbsent() {
		return Placeholder
	}
	return f.FormatAny(v.Data, field)
}

// FormatAny renders an arbitrary value. When field names a foreign key and the
// value is numeric, the id is resolved to its label or rendered as #<id>.
func (f *Formatter) FormatAny(value any, field string) string {
	value = unwrapAny(value)
	if isNil(value) {
		return Placeholder
	}
	if s, ok := value.(string); ok && s == "" {
		return Placeholder
	}

	if field != "" {
		if n, ok := finiteNumber(value); ok {
			if domain, routed := f.domains.Resolve(field); routed {
				return f.resolve(domain, n)
			}
		}
	}

	switch t := value.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	}
	if tagOf(value) == tagNumber {
		return scalarString(value)
	}
	if encoded, err := encodeJSON(value, false); err == nil {
		return string(encoded)
	}
	return coerce(value)
}

func (f *Formatter) resolve(domain Domain, n float64) string {
	if f.directory != nil && n == math.Trunc(n) && math.Abs(n) < 1<<63 {
		if label, ok := f.directory.Lookup(domain, int64(n)); ok {
			return label
		}
	}
	return "#" + formatNumber(n)
}

// finiteNumber accepts numbers and strings that parse as finite numbers.
func finiteNumber(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	}
	if tagOf(v) != tagNumber {
		return 0, false
	}
	n, ok := numberValue(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// coerce is the last-resort rendering for values JSON cannot encode. Containers
// may be cyclic, so only their type is printed.
func coerce(v any) string {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer, reflect.Interface:
		return fmt.Sprintf("[object %T]", v)
	}
	return fmt.Sprint(v)
}
