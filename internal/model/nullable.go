package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Nullable is a tri-state JSON field. A field that never appeared in the
// document means "no opinion"; an explicit null means "clear this value";
// anything else is a value. The distinction drives the diff engine's
// deletion semantics, so fragments must never collapse null into absent.
type Nullable[T any] struct {
	present bool
	valid   bool
	value   T
}

// Value returns a Nullable holding v.
func Value[T any](v T) Nullable[T] {
	return Nullable[T]{present: true, valid: true, value: v}
}

// Null returns a Nullable carrying an explicit null.
func Null[T any]() Nullable[T] {
	return Nullable[T]{present: true}
}

// Present reports whether the field appeared in the document at all.
func (n Nullable[T]) Present() bool { return n.present }

// IsNull reports whether the field was an explicit null.
func (n Nullable[T]) IsNull() bool { return n.present && !n.valid }

// Get returns the value and whether one is set.
func (n Nullable[T]) Get() (T, bool) {
	return n.value, n.present && n.valid
}

// IsZero makes absent fields drop out under the omitzero JSON tag.
func (n Nullable[T]) IsZero() bool { return !n.present }

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.value)
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.present = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.valid = false
		return nil
	}
	if err := json.Unmarshal(b, &n.value); err != nil {
		return eris.Wrap(err, "model: unmarshal nullable")
	}
	n.valid = true
	return nil
}
