package proto

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"retsh/internal/errors"
)

// MaxMessageSize is the hard ceiling on an encoded payload (1 MiB).
const MaxMessageSize = 1 << 20

// frameHeaderSize is the 4-byte length prefix.
const frameHeaderSize = 4

// envelope is the self-describing payload: the message kind plus the
// variant's own CBOR encoding.  Decoding reconstructs the variant from
// the envelope alone; the frame's type byte is only cross-checked.
type envelope struct {
	Kind Kind            `cbor:"kind"`
	Body cbor.RawMessage `cbor:"body"`
}

// Encode serializes a message into one frame.
func Encode(m Message) ([]byte, error) {
	body, err := cbor.Marshal(m)
	if err != nil {
		return nil, &errors.ProtocolError{Reason: "encoding message body", Err: err}
	}
	payload, err := cbor.Marshal(envelope{Kind: m.Kind(), Body: body})
	if err != nil {
		return nil, &errors.ProtocolError{Reason: "encoding envelope", Err: err}
	}
	if len(payload) > MaxMessageSize {
		return nil, &errors.MessageTooLarge{Size: len(payload), Max: MaxMessageSize}
	}

	frame := make([]byte, 0, frameHeaderSize+1+len(payload))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)+1))
	frame = append(frame, byte(m.Kind()))
	frame = append(frame, payload...)
	return frame, nil
}

// Decode extracts one message from buf.  It returns (nil, nil) when buf
// holds less than a complete frame; bytes are only consumed once a full
// frame is present.  A declared length beyond the ceiling fails
// immediately, before any further data is awaited.
func Decode(buf *bytes.Buffer) (Message, error) {
	if buf.Len() < frameHeaderSize {
		return nil, nil
	}

	length := int(binary.BigEndian.Uint32(buf.Bytes()[:frameHeaderSize]))
	if length > MaxMessageSize+1 {
		return nil, &errors.MessageTooLarge{Size: length, Max: MaxMessageSize}
	}
	if length < 1 {
		return nil, &errors.ProtocolError{Reason: "frame length must be at least 1"}
	}
	if buf.Len() < frameHeaderSize+length {
		return nil, nil
	}

	buf.Next(frameHeaderSize)
	typeByte := Kind(buf.Next(1)[0])
	payload := buf.Next(length - 1)

	var env envelope
	if err := cbor.Unmarshal(payload, &env); err != nil {
		return nil, &errors.ProtocolError{Reason: "decoding envelope", Err: err}
	}
	if env.Kind != typeByte {
		return nil, &errors.ProtocolError{
			Reason: fmt.Sprintf("type byte %#x disagrees with payload kind %#x", typeByte, env.Kind),
		}
	}
	return decodeBody(env)
}

// DecodeAll drains every complete frame currently buffered.
func DecodeAll(buf *bytes.Buffer) ([]Message, error) {
	var messages []Message
	for {
		msg, err := Decode(buf)
		if err != nil {
			return messages, err
		}
		if msg == nil {
			return messages, nil
		}
		messages = append(messages, msg)
	}
}

func decodeBody(env envelope) (Message, error) {
	var (
		msg Message
		err error
	)
	switch env.Kind {
	case KindConnect:
		var m Connect
		err = cbor.Unmarshal(env.Body, &m)
		msg = m
	case KindAccept:
		var m Accept
		err = cbor.Unmarshal(env.Body, &m)
		msg = m
	case KindReject:
		var m Reject
		err = cbor.Unmarshal(env.Body, &m)
		msg = m
	case KindCommandRequest:
		var m CommandRequest
		err = cbor.Unmarshal(env.Body, &m)
		msg = m
	case KindCommandResponse:
		var m CommandResponse
		err = cbor.Unmarshal(env.Body, &m)
		msg = m
	case KindDisconnect:
		var m Disconnect
		err = cbor.Unmarshal(env.Body, &m)
		msg = m
	case KindAck:
		var m Ack
		err = cbor.Unmarshal(env.Body, &m)
		msg = m
	case KindPing:
		msg = Ping{}
	case KindPong:
		msg = Pong{}
	default:
		return nil, &errors.ProtocolError{
			Reason: fmt.Sprintf("invalid message kind: %#x", uint8(env.Kind)),
		}
	}
	if err != nil {
		return nil, &errors.ProtocolError{Reason: "decoding message body", Err: err}
	}
	return msg, nil
}
