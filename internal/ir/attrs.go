package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"
)

// AttrValue is a sealed attribute value. Only AttrString, AttrInt and AttrBool
// implement it.
type AttrValue interface {
	attrValue()
}

// AttrString is a string attribute.
type AttrString string

// AttrInt is an integer attribute. There is no float counterpart.
type AttrInt int64

// AttrBool is a boolean attribute.
type AttrBool bool

func (AttrString) attrValue() {}
func (AttrInt) attrValue() {}
func (AttrBool) attrValue() {}

// Attrs is the attribute map carried by an element.
type Attrs map[string]AttrValue

// SortedKeys returns the keys ordered by UTF-16 code units, the same order
// MarshalCanonical uses.
func (a Attrs) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sortUTF16(keys)
	return keys
}

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// UnmarshalJSON decodes attribute values back into their sealed types.
// Integers must be whole numbers; floats and nested values are rejected.
func (a *Attrs) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*a = nil
		return nil
	}

	out := make(Attrs, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = AttrString(val)
		case bool:
			out[k] = AttrBool(val)
		case json.Number:
			n, err := val.Int64()
			if err != nil {
				return fmt.Errorf("attribute %q: not an integer: %s", k, val)
			}
			out[k] = AttrInt(n)
		default:
			return fmt.Errorf("attribute %q: unsupported value type %T", k, v)
		}
	}
	*a = out
	return nil
}

func sortUTF16(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		return lessUTF16(keys[i], keys[j])
	})
}

// lessUTF16 compares strings by UTF-16 code units as RFC 8785 requires.
// This differs from Go's byte order for characters outside the BMP.
func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}
