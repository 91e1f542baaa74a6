package utils

import "encoding/json"

// Optional records whether a JSON field was present in a request body, so
// partial updates can tell "not sent" from "sent as zero value or null".
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON is only called for keys present in the payload.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}
