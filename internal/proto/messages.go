// Package proto defines the application wire protocol: a closed set of
// tagged messages and a length-prefixed frame codec.
//
// Frame format (big-endian):
//
//	[ 4 bytes: frame length = 1 + payload length ]
//	[ 1 byte : message type                      ]
//	[ N bytes: CBOR-encoded payload              ]
//
// The payload is self-describing (it embeds the message kind); the
// frame's type byte is advisory and validated against it on decode.
package proto

import (
	"fmt"

	"github.com/google/uuid"
)

// CurrentProtocolVersion is the protocol version both sides must speak.
const CurrentProtocolVersion uint32 = 1

// CapabilityCommandExec is the capability name advertised by both sides
// of a shell connection.
const CapabilityCommandExec = "command-exec"

// SessionID uniquely identifies one accepted connection.
type SessionID [16]byte

// NewSessionID returns a fresh random session id.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// String renders the id in UUID form.
func (s SessionID) String() string {
	return uuid.UUID(s).String()
}

// Kind tags each message variant.  The values double as the advisory
// type byte in the frame header.
type Kind uint8

const (
	KindConnect         Kind = 0x01
	KindAccept          Kind = 0x02
	KindReject          Kind = 0x03
	KindCommandRequest  Kind = 0x10
	KindCommandResponse Kind = 0x11
	KindDisconnect      Kind = 0x20
	KindAck             Kind = 0x21
	KindPing            Kind = 0x30
	KindPong            Kind = 0x31
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindAccept:
		return "accept"
	case KindReject:
		return "reject"
	case KindCommandRequest:
		return "command-request"
	case KindCommandResponse:
		return "command-response"
	case KindDisconnect:
		return "disconnect"
	case KindAck:
		return "ack"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// Message is the closed variant set of the wire protocol.
type Message interface {
	Kind() Kind
}

// Connect initiates a connection from client to server.
type Connect struct {
	ProtocolVersion uint32   `cbor:"protocol_version"`
	ClientIdentity  []byte   `cbor:"client_identity"`
	Capabilities    []string `cbor:"capabilities"`
	AuthToken       string   `cbor:"auth_token,omitempty"`
}

// Accept is the server's positive reply to a Connect.
type Accept struct {
	ProtocolVersion uint32    `cbor:"protocol_version"`
	ServerIdentity  []byte    `cbor:"server_identity"`
	SessionID       SessionID `cbor:"session_id"`
	Capabilities    []string  `cbor:"capabilities"`
}

// Reject error codes.
const (
	RejectUnexpectedMessage uint32 = 1
	RejectVersionMismatch   uint32 = 2
	RejectNotAuthorized     uint32 = 3
	RejectServerFull        uint32 = 4
	RejectBadAuthToken      uint32 = 5
)

// Reject is the server's negative reply to a Connect.
type Reject struct {
	Reason    string `cbor:"reason"`
	ErrorCode uint32 `cbor:"error_code"`
}

// CommandRequest asks the server to execute a program.  ID correlates
// the eventual CommandResponse.  Timeout is in seconds; zero means the
// server default.
type CommandRequest struct {
	ID         uint64            `cbor:"id"`
	Command    string            `cbor:"command"`
	Args       []string          `cbor:"args"`
	Env        map[string]string `cbor:"env,omitempty"`
	Timeout    uint64            `cbor:"timeout,omitempty"`
	WorkingDir string            `cbor:"working_dir,omitempty"`
}

// CommandStatus reports how an execution ended.
type CommandStatus uint8

const (
	StatusSuccess CommandStatus = iota
	StatusTimeout
	StatusError
	StatusKilled
)

func (s CommandStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	case StatusKilled:
		return "killed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// CommandResponse carries the result of one CommandRequest.
type CommandResponse struct {
	ID              uint64        `cbor:"id"`
	Status          CommandStatus `cbor:"status"`
	Stdout          []byte        `cbor:"stdout"`
	Stderr          []byte        `cbor:"stderr"`
	ExitCode        int32         `cbor:"exit_code"`
	ExecutionTimeMs uint64        `cbor:"execution_time_ms"`
}

// Disconnect ends a session from either side.
type Disconnect struct {
	Reason string `cbor:"reason,omitempty"`
}

// Ack acknowledges a message by id.
type Ack struct {
	MessageID uint64 `cbor:"message_id"`
}

// Ping is a keep-alive probe.
type Ping struct{}

// Pong answers a Ping.
type Pong struct{}

func (Connect) Kind() Kind         { return KindConnect }
func (Accept) Kind() Kind          { return KindAccept }
func (Reject) Kind() Kind          { return KindReject }
func (CommandRequest) Kind() Kind  { return KindCommandRequest }
func (CommandResponse) Kind() Kind { return KindCommandResponse }
func (Disconnect) Kind() Kind      { return KindDisconnect }
func (Ack) Kind() Kind             { return KindAck }
func (Ping) Kind() Kind            { return KindPing }
func (Pong) Kind() Kind            { return KindPong }
