package jsonx

import (
	"bytes"
	"encoding/json"
)

// Field[T] records whether a key was present in a JSON object:
//   - IsSet() == false => key absent; keep the current value
//   - IsNull()         => key present with null
//   - Value() != nil   => key present with a value
type Field[T any] struct {
	set bool
	val *T
}

// Set returns a present field holding v.
func Set[T any](v T) Field[T] { return Field[T]{set: true, val: &v} }

func (o Field[T]) IsSet() bool  { return o.set }
func (o Field[T]) IsNull() bool { return o.set && o.val == nil }
func (o Field[T]) Value() *T    { return o.val }

// Or returns the field value, or cur when the key was absent or null.
func (o Field[T]) Or(cur T) T {
	if o.val == nil {
		return cur
	}
	return *o.val
}

func (o *Field[T]) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		o.set, o.val = true, nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.set, o.val = true, &v
	return nil
}
