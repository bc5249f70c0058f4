package audittrail

// DefaultIgnoredFields are bookkeeping columns that never count as changes.
var DefaultIgnoredFields = []string{"updatedAt", "createdAt", "deletedAt"}

// Differ compares before/after snapshots field by field.
type Differ struct {
	ignored map[string]struct{}
}

// NewDiffer builds a differ that skips the bookkeeping fields, the envelope
// markers and any extra fields given.
func NewDiffer(extra ...string) *Differ {
	set := make(map[string]struct{}, len(DefaultIgnoredFields)+len(extra)+2)
	for _, field := range DefaultIgnoredFields {
		set[field] = struct{}{}
	}
	for _, field := range extra {
		set[field] = struct{}{}
	}
	set[EnvelopeBefore] = struct{}{}
	set[EnvelopeAfter] = struct{}{}
	return &Differ{ignored: set}
}

// Diff returns one change per differing key, in first-seen order: before's keys
// first, then keys that only appear in after. A side that is not an object is
// treated as an empty object.
func (d *Differ) Diff(before, after any) []Change {
	b, ok := asObject(before)
	if !ok {
		b = NewObject()
	}
	a, ok := asObject(after)
	if !ok {
		a = NewObject()
	}

	changes := make([]Change, 0)
	for _, key := range d.candidateKeys(b, a) {
		bv := sideValue(b, key)
		av := sideValue(a, key)
		if Equal(bv, av) {
			continue
		}
		changes = append(changes, Change{Field: key, Before: bv, After: av})
	}
	return changes
}

func (d *Differ) candidateKeys(before, after *Object) []string {
	seen := make(map[string]struct{}, before.Len()+after.Len())
	keys := make([]string, 0, before.Len()+after.Len())
	for _, side := range []*Object{before, after} {
		for _, key := range side.Keys() {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if _, skip := d.ignored[key]; skip {
				continue
			}
			keys = append(keys, key)
		}
	}
	return keys
}

func sideValue(obj *Object, key string) Value {
	v, ok := obj.Get(key)
	if !ok {
		return Absent()
	}
	return Present(v)
}
