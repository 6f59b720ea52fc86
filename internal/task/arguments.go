package task

import (
	"encoding/json"
	"fmt"
)

// Arguments holds the positional and keyword arguments of one task call as
// raw JSON. Values are encoded once at submission and never re-encoded, so
// they round-trip byte for byte through the queue.
type Arguments struct {
	Args   []json.RawMessage          `json:"args"`
	Kwargs map[string]json.RawMessage `json:"kwargs"`
}

// NewArguments encodes args and kwargs. Nil inputs become empty collections.
func NewArguments(args []any, kwargs map[string]any) (Arguments, error) {
	a := Arguments{
		Args:   make([]json.RawMessage, 0, len(args)),
		Kwargs: make(map[string]json.RawMessage, len(kwargs)),
	}

	for i, v := range args {
		raw, err := json.Marshal(v)
		if err != nil {
			return Arguments{}, fmt.Errorf("%w: args[%d]: %v", ErrUnserializableArgument, i, err)
		}
		a.Args = append(a.Args, raw)
	}

	for name, v := range kwargs {
		raw, err := json.Marshal(v)
		if err != nil {
			return Arguments{}, fmt.Errorf("%w: kwargs[%q]: %v", ErrUnserializableArgument, name, err)
		}
		a.Kwargs[name] = raw
	}

	return a, nil
}

// Len returns the number of positional arguments.
func (a Arguments) Len() int {
	return len(a.Args)
}

// Arg decodes positional argument i into dst.
func (a Arguments) Arg(i int, dst any) error {
	if i < 0 || i >= len(a.Args) {
		return fmt.Errorf("missing positional argument %d (got %d)", i, len(a.Args))
	}
	if err := json.Unmarshal(a.Args[i], dst); err != nil {
		return fmt.Errorf("failed to decode positional argument %d: %w", i, err)
	}
	return nil
}

// Kwarg decodes keyword argument name into dst. It reports false, and leaves
// dst untouched, when the argument was not supplied.
func (a Arguments) Kwarg(name string, dst any) (bool, error) {
	raw, ok := a.Kwargs[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("failed to decode keyword argument %q: %w", name, err)
	}
	return true, nil
}

// Clone returns a deep copy of a.
func (a Arguments) Clone() Arguments {
	c := Arguments{
		Args:   make([]json.RawMessage, len(a.Args)),
		Kwargs: make(map[string]json.RawMessage, len(a.Kwargs)),
	}
	for i, raw := range a.Args {
		c.Args[i] = append(json.RawMessage(nil), raw...)
	}
	for k, raw := range a.Kwargs {
		c.Kwargs[k] = append(json.RawMessage(nil), raw...)
	}
	return c
}
