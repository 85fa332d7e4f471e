// Package wire encodes and decodes the compact chat envelope exchanged with the relay.
package wire

import (
	"encoding/json"
	"fmt"
)

// Frame is one chat message as it travels over the transport.
type Frame struct {
	SenderID  string
	Text      string
	Timestamp int64 // unix epoch in milliseconds
}

// envelope is the on-the-wire shape: {"u":..., "m":..., "t":...}.
// Pointer fields let Decode tell a missing key from a zero value.
type envelope struct {
	U *string `json:"u"`
	M *string `json:"m"`
	T *int64  `json:"t"`
}

// DecodeError is returned when an inbound frame is not a valid envelope.
type DecodeError struct {
	Frame string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %q: %v", truncate(e.Frame, 64), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode renders f as a text frame.
func Encode(f Frame) (string, error) {
	data, err := json.Marshal(envelope{U: &f.SenderID, M: &f.Text, T: &f.Timestamp})
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return string(data), nil
}

// Decode parses a text frame. Unknown keys are ignored; missing or null
// required keys and a non-integer timestamp yield a *DecodeError.
func Decode(frame string) (Frame, error) {
	var env envelope
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		return Frame{}, &DecodeError{Frame: frame, Err: err}
	}
	switch {
	case env.U == nil:
		return Frame{}, &DecodeError{Frame: frame, Err: fmt.Errorf("missing field %q", "u")}
	case env.M == nil:
		return Frame{}, &DecodeError{Frame: frame, Err: fmt.Errorf("missing field %q", "m")}
	case env.T == nil:
		return Frame{}, &DecodeError{Frame: frame, Err: fmt.Errorf("missing field %q", "t")}
	}
	return Frame{SenderID: *env.U, Text: *env.M, Timestamp: *env.T}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
