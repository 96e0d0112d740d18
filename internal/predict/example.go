package predict

import (
	"maps"
	"sort"
)

// Example is a bag of named string fields, some of which are marked as inputs.
// The rest are labels.
type Example struct {
	fields    map[string]string
	inputKeys []string
}

// NewExample copies fields into a new example with no inputs marked.
func NewExample(fields map[string]string) Example {
	return Example{fields: maps.Clone(fields)}
}

// WithInputs returns a copy with the given keys marked as inputs.
func (e Example) WithInputs(keys ...string) Example {
	return Example{fields: maps.Clone(e.fields), inputKeys: append([]string(nil), keys...)}
}

// Get returns a field value.
func (e Example) Get(key string) (string, bool) {
	v, ok := e.fields[key]
	return v, ok
}

// Fields returns a copy of every field.
func (e Example) Fields() map[string]string {
	return maps.Clone(e.fields)
}

// Keys returns field names in sorted order.
func (e Example) Keys() []string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e Example) isInput(key string) bool {
	for _, k := range e.inputKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Inputs returns the fields marked as inputs that are present.
func (e Example) Inputs() map[string]string {
	out := make(map[string]string, len(e.inputKeys))
	for _, k := range e.inputKeys {
		if v, ok := e.fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Labels returns every field not marked as input.
func (e Example) Labels() map[string]string {
	out := make(map[string]string)
	for k, v := range e.fields {
		if !e.isInput(k) {
			out[k] = v
		}
	}
	return out
}

// Equal reports whether both examples carry the same fields.
func (e Example) Equal(other Example) bool {
	return maps.Equal(e.fields, other.fields)
}

// Prediction holds the output fields produced by a predictor.
type Prediction map[string]string

// Get returns the named field or "".
func (p Prediction) Get(name string) string {
	return p[name]
}
