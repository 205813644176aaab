package proto

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"retsh/internal/errors"
)

func TestEncodeDecode_CommandRequest(t *testing.T) {
	req := CommandRequest{
		ID:      42,
		Command: "echo",
		Args:    []string{"hello", "world"},
		Env:     map[string]string{"LANG": "C"},
		Timeout: 30,
	}

	encoded, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	buf := bytes.NewBuffer(encoded)
	msg, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	decoded, ok := msg.(CommandRequest)
	if !ok {
		t.Fatalf("decoded %T, want CommandRequest", msg)
	}
	if decoded.ID != req.ID || decoded.Command != req.Command {
		t.Errorf("decoded = %+v, want %+v", decoded, req)
	}
	if len(decoded.Args) != 2 || decoded.Args[0] != "hello" {
		t.Errorf("args = %v", decoded.Args)
	}
	if decoded.Env["LANG"] != "C" {
		t.Errorf("env = %v", decoded.Env)
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes left unconsumed", buf.Len())
	}
}

func TestEncodeDecode_AllVariants(t *testing.T) {
	sid := NewSessionID()
	msgs := []Message{
		Connect{ProtocolVersion: 1, ClientIdentity: []byte{1, 2, 3}, Capabilities: []string{CapabilityCommandExec}, AuthToken: "tok"},
		Accept{ProtocolVersion: 1, ServerIdentity: []byte{4, 5}, SessionID: sid, Capabilities: []string{CapabilityCommandExec}},
		Reject{Reason: "nope", ErrorCode: RejectNotAuthorized},
		CommandRequest{ID: 7, Command: "ls"},
		CommandResponse{ID: 7, Status: StatusError, Stderr: []byte("bad"), ExitCode: 2, ExecutionTimeMs: 12},
		Disconnect{Reason: "bye"},
		Ack{MessageID: 9},
		Ping{},
		Pong{},
	}

	for _, m := range msgs {
		encoded, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode(%T): %v", m, err)
		}
		decoded, err := Decode(bytes.NewBuffer(encoded))
		if err != nil {
			t.Fatalf("Decode(%T): %v", m, err)
		}
		if decoded.Kind() != m.Kind() {
			t.Errorf("kind = %#x, want %#x", decoded.Kind(), m.Kind())
		}
	}
}

func TestDecode_SessionIDPreserved(t *testing.T) {
	sid := NewSessionID()
	encoded, err := Encode(Accept{ProtocolVersion: 1, SessionID: sid})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := Decode(bytes.NewBuffer(encoded))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := msg.(Accept).SessionID; got != sid {
		t.Errorf("session id = %s, want %s", got, sid)
	}
}

func TestDecode_PartialBuffer(t *testing.T) {
	encoded, err := Encode(CommandRequest{ID: 1, Command: "uptime"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Every strict prefix must yield "incomplete", never a message or
	// an error, and must not consume anything.
	for cut := 0; cut < len(encoded); cut++ {
		buf := bytes.NewBuffer(encoded[:cut])
		msg, err := Decode(buf)
		if err != nil {
			t.Fatalf("prefix %d: unexpected error: %v", cut, err)
		}
		if msg != nil {
			t.Fatalf("prefix %d: got message from incomplete frame", cut)
		}
		if buf.Len() != cut {
			t.Fatalf("prefix %d: consumed bytes from incomplete frame", cut)
		}
	}
}

func TestDecode_MultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	for _, m := range []Message{Ping{}, Pong{}, Ack{MessageID: 3}} {
		encoded, err := Encode(m)
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(encoded)
	}

	msgs, err := DecodeAll(&buf)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("decoded %d messages, want 3", len(msgs))
	}
	if _, ok := msgs[0].(Ping); !ok {
		t.Errorf("msgs[0] = %T, want Ping", msgs[0])
	}
	if _, ok := msgs[1].(Pong); !ok {
		t.Errorf("msgs[1] = %T, want Pong", msgs[1])
	}
	if ack, ok := msgs[2].(Ack); !ok || ack.MessageID != 3 {
		t.Errorf("msgs[2] = %#v, want Ack{3}", msgs[2])
	}
}

func TestEncode_MessageTooLarge(t *testing.T) {
	big := CommandRequest{ID: 1, Command: strings.Repeat("x", MaxMessageSize)}
	_, err := Encode(big)

	var tooLarge *errors.MessageTooLarge
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want MessageTooLarge", err)
	}
}

func TestDecode_HostileLengthField(t *testing.T) {
	// A frame claiming 16 MiB must fail before any payload arrives.
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 16<<20)
	buf.Write(header[:])

	_, err := Decode(&buf)
	var tooLarge *errors.MessageTooLarge
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want MessageTooLarge", err)
	}
}

func TestDecode_TypeByteMismatch(t *testing.T) {
	encoded, err := Encode(Ping{})
	if err != nil {
		t.Fatal(err)
	}
	encoded[4] = byte(KindPong) // corrupt the advisory type byte

	if _, err := Decode(bytes.NewBuffer(encoded)); err == nil {
		t.Error("expected error for type byte disagreeing with payload")
	}
}

func TestDecode_GarbagePayload(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 4)
	buf.Write(header[:])
	buf.Write([]byte{byte(KindPing), 0xFF, 0xFF, 0xFF})

	if _, err := Decode(&buf); err == nil {
		t.Error("expected error for undecodable payload")
	}
}

func TestSessionID_Unique(t *testing.T) {
	if NewSessionID() == NewSessionID() {
		t.Error("two fresh session ids compare equal")
	}
}
