package polish

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResultType says how the UI should render an envelope.
type ResultType string

const (
	TypeSuggestion    ResultType = "suggestion"
	TypeAnalysis      ResultType = "analysis"
	TypeClarification ResultType = "clarification"
	TypeError         ResultType = "error"
)

// parseResultType maps an upstream type string onto the closed set.
// Anything unrecognised is treated as a suggestion.
func parseResultType(s string) ResultType {
	switch ResultType(s) {
	case TypeAnalysis, TypeClarification, TypeError:
		return ResultType(s)
	}
	return TypeSuggestion
}

// Data is the envelope payload: null, a single string, or an ordered list of strings.
type Data struct {
	items []string
	list  bool
	valid bool
}

// Text returns a single-string payload.
func Text(s string) Data {
	return Data{items: []string{s}, valid: true}
}

// List returns a list payload. A nil slice still yields a (empty) list.
func List(items []string) Data {
	cp := make([]string, len(items))
	copy(cp, items)
	return Data{items: cp, list: true, valid: true}
}

// IsNull reports whether no payload is present.
func (d Data) IsNull() bool { return !d.valid }

// IsList reports whether the payload is a list.
func (d Data) IsList() bool { return d.list }

// Items returns the payload as a list; a single string becomes a one-element list.
func (d Data) Items() []string {
	if !d.valid {
		return nil
	}
	out := make([]string, len(d.items))
	copy(out, d.items)
	return out
}

// First returns the first entry, or "" when there is none.
func (d Data) First() string {
	if !d.valid || len(d.items) == 0 {
		return ""
	}
	return d.items[0]
}

// Empty reports whether the payload is null or carries only empty strings.
func (d Data) Empty() bool {
	for _, s := range d.items {
		if s != "" {
			return false
		}
	}
	return true
}

// Equal is used by go-cmp and tests.
func (d Data) Equal(o Data) bool {
	if d.valid != o.valid || d.list != o.list || len(d.items) != len(o.items) {
		return false
	}
	for i := range d.items {
		if d.items[i] != o.items[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes null, a string, or an array of strings.
func (d Data) MarshalJSON() ([]byte, error) {
	switch {
	case !d.valid:
		return []byte("null"), nil
	case d.list:
		if d.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(d.items)
	default:
		return json.Marshal(d.First())
	}
}

// UnmarshalJSON accepts null, a string, or an array of strings.
func (d *Data) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = Data{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Text(s)
		return nil
	case '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("envelope data: %w", err)
		}
		*d = List(items)
		return nil
	}
	return fmt.Errorf("envelope data: unsupported json %q", b)
}

// Envelope is the canonical result handed to the UI layer.
// Success implies non-null Data; failure implies a non-empty Error.
type Envelope struct {
	Success bool       `json:"success"`
	Data    Data       `json:"data"`
	Type    ResultType `json:"type"`
	Error   string     `json:"error,omitempty"`
	// Code carries the stable error kind of a failed envelope.
	Code Kind `json:"code,omitempty"`
}

// Suggestion returns a successful suggestion envelope.
func Suggestion(d Data) Envelope {
	return Envelope{Success: true, Data: d, Type: TypeSuggestion}
}

// Failure returns a failed envelope with type=error.
func Failure(kind Kind, message string) Envelope {
	return Envelope{Success: false, Type: TypeError, Error: message, Code: kind}
}

// Valid checks the envelope invariants.
func (e Envelope) Valid() bool {
	if e.Success {
		return !e.Data.IsNull()
	}
	return e.Error != ""
}
