package field

import (
	"fmt"
	"sort"
	"strings"
)

// Field is a tuple with a string key and a value of any type
type Field interface {
	Key() string
	Value() interface{}
}

// Fields is a collection of fields
type Fields interface {
	Fields() []Field
}

// M is a convenience alias for populating fields from a map literal.
type M map[string]interface{}

type field struct {
	key   string
	value interface{}
}

var _ fmt.Stringer = field{}

func (f field) Key() string {
	return f.key
}

func (f field) Value() interface{} {
	return f.value
}

func (f field) String() string {
	return fmt.Sprintf("%q:%q", f.key, f.value)
}

type fieldList []Field

func (l fieldList) Fields() []Field {
	return l
}

func (l fieldList) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range l {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%q", f.Key(), f.Value())
	}
	b.WriteByte(']')
	return b.String()
}

// New creates a new field collection with the given key and value
func New(key string, value interface{}) Fields {
	return Add(nil, key, value)
}

// Add returns a collection with all the fields in s plus a new field with the
// given key and value. Duplicates are not eliminated. s is never mutated;
// collections derived from the same parent do not share storage.
func Add(s Fields, key string, value interface{}) Fields {
	l := asList(s)
	out := make(fieldList, len(l), len(l)+1)
	copy(out, l)
	return append(out, field{key: key, value: value})
}

func addMap(s Fields, m M) Fields {
	l := asList(s)
	out := make(fieldList, len(l), len(l)+len(m))
	copy(out, l)
	// Map iteration order is not stable. Sort the keys so repeated calls
	// produce the same field order.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, field{key: k, value: m[k]})
	}
	return out
}

func asList(s Fields) fieldList {
	if s == nil {
		return nil
	}
	if l, ok := s.(fieldList); ok {
		return l
	}
	return fieldList(s.Fields())
}
