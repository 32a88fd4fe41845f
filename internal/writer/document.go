package writer

import "sort"

// Document is the full content of a secret: key to JSON value.
type Document map[string]any

// Clone returns a shallow copy. Values are never modified in place, so a
// shallow copy is enough to keep the source untouched.
func (d Document) Clone() Document {
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// With returns a new Document holding d's entries with key set to value.
// d itself is not modified.
func (d Document) With(key string, value any) Document {
	out := d.Clone()
	out[key] = value
	return out
}

// Keys returns the document's keys in sorted order.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
