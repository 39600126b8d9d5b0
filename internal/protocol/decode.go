package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformed marks a frame that is not a JSON object, or whose fields
	// have the wrong JSON types. It is fatal to the connection.
	ErrMalformed = errors.New("malformed frame")
	// ErrInvalid marks a well-formed frame missing a required field. The
	// frame is dropped and the connection stays open.
	ErrInvalid = errors.New("invalid frame")
)

// Decoder turns raw client frames into Requests. It is safe for concurrent use.
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder returns a Decoder with struct validation enabled.
func NewDecoder() *Decoder {
	return &Decoder{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Decode parses a single client frame.
//
// Postcondition: Returns a Request, or an error wrapping ErrMalformed or
// ErrInvalid. Frames with an unhandled or missing type decode to Unknown.
func (d *Decoder) Decode(frame []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: frame is null", ErrMalformed)
	}

	var kind Kind
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &kind); err != nil {
			// A non-string type can never match a handled kind.
			return Unknown{}, nil
		}
	}

	var req Request
	switch kind {
	case KindInvite:
		var m Invite
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
		}
		if m.To == nil {
			m.To = Names{}
		}
		req = m
	case KindInviteResponse:
		var m InviteResponse
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
		}
		req = m
	case KindCreateRoom:
		req = CreateRoom{}
	case KindJoinRoom:
		var m JoinRoom
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
		}
		req = m
	case KindLeaveRoom:
		var m LeaveRoom
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
		}
		req = m
	default:
		return Unknown{Type: kind}, nil
	}

	if err := d.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, kind, err)
	}
	return req, nil
}
