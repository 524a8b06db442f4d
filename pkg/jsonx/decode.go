package jsonx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// MaxBodyBytes caps DecodeStrict input.
const MaxBodyBytes = 1 << 20

var (
	ErrEmptyBody    = errors.New("empty body")
	ErrTrailingJSON = errors.New("trailing data after JSON value")
)

// DecodeStrict decodes exactly one JSON value from r into dst, rejecting
// unknown fields. Every error it returns maps to 400 Bad Request: syntax,
// type mismatch, unknown field, empty body or trailing data. It does not
// validate field values.
func DecodeStrict[T any](r io.Reader, dst *T) error {
	if r == nil {
		return ErrEmptyBody
	}
	body, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ErrTrailingJSON
	}
	return nil
}
