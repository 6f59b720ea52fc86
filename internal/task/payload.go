package task

import (
	"encoding/json"
	"fmt"
)

// Payload is the JSON body a push queue delivers back to the dispatch endpoint.
type Payload struct {
	TaskPath string                     `json:"task_path"`
	Args     []json.RawMessage          `json:"args"`
	Kwargs   map[string]json.RawMessage `json:"kwargs"`
}

// NewPayload builds the wire payload for calling t with args.
func NewPayload(t *Task, args Arguments) Payload {
	c := args.Clone()
	return Payload{TaskPath: t.Name, Args: c.Args, Kwargs: c.Kwargs}
}

// Arguments returns the payload's arguments.
func (p Payload) Arguments() Arguments {
	return Arguments{Args: p.Args, Kwargs: p.Kwargs}.Clone()
}

// Encode returns the canonical JSON encoding of p.
func (p Payload) Encode() ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task payload: %w", err)
	}
	return body, nil
}
