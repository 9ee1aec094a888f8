package catalog

import (
	"bytes"
	"encoding/json"
)

// List is a JSON array that also accepts an object in its place. Game data
// dumps encode empty arrays as {} (Lua tables have no empty-array form), so
// an object decodes as an empty list.
type List[T any] []T

// UnmarshalJSON implements json.Unmarshaler.
func (l *List[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		*l = nil
		return nil
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return err
	}
	*l = items
	return nil
}
