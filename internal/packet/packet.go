// Package packet defines the binary envelope carried across the
// overlay transport.
//
// Wire format (big-endian):
//
//	[ 1 byte  : packet type            ]
//	[ 32 bytes: destination hash       ]
//	[ 2 bytes : payload length (u16)   ]
//	[ N bytes : payload                ]
//	[ 1 byte  : signature flag         ]
//	[ 64 bytes: signature, iff flag=1  ]
package packet

import (
	"encoding/binary"
	"fmt"

	"retsh/internal/errors"
	"retsh/internal/identity"
)

// Type identifies the packet kind.
type Type uint8

// Packet type constants.
const (
	TypeData         Type = 0x00
	TypeAnnounce     Type = 0x01
	TypeLinkRequest  Type = 0x02
	TypeLinkResponse Type = 0x03
	TypeProof        Type = 0x04
)

// typeFromByte rejects unknown type bytes.
func typeFromByte(b uint8) (Type, error) {
	if b > uint8(TypeProof) {
		return 0, &errors.PacketError{Reason: fmt.Sprintf("invalid packet type: %d", b)}
	}
	return Type(b), nil
}

// headerSize is type(1) + destination(32) + length(2).
const headerSize = 1 + identity.HashSize + 2

// MaxPayload is the largest payload expressible in the 16-bit length
// field.
const MaxPayload = 65535

// Packet is one envelope: a typed payload addressed to a destination
// hash, optionally signed by the sender.
type Packet struct {
	Type        Type
	Destination identity.Hash
	Payload     []byte
	Signature   []byte // nil, or exactly 64 bytes
}

// Data builds an unsigned data packet.
func Data(destination identity.Hash, payload []byte) *Packet {
	return &Packet{Type: TypeData, Destination: destination, Payload: payload}
}

// Announce builds an unsigned announce packet.
func Announce(destination identity.Hash, payload []byte) *Packet {
	return &Packet{Type: TypeAnnounce, Destination: destination, Payload: payload}
}

// WithSignature attaches a signature and returns the packet.
func (p *Packet) WithSignature(sig []byte) *Packet {
	p.Signature = sig
	return p
}

// Encode serializes the packet.  It fails if the payload exceeds the
// 16-bit length field or if a present signature is not 64 bytes.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, &errors.PacketError{
			Reason: fmt.Sprintf("payload too large: %d bytes (max %d)", len(p.Payload), MaxPayload),
		}
	}
	if p.Signature != nil && len(p.Signature) != identity.SignatureSize {
		return nil, &errors.PacketError{
			Reason: fmt.Sprintf("signature must be %d bytes, got %d", identity.SignatureSize, len(p.Signature)),
		}
	}

	size := headerSize + len(p.Payload) + 1
	if p.Signature != nil {
		size += identity.SignatureSize
	}

	buf := make([]byte, 0, size)
	buf = append(buf, byte(p.Type))
	buf = append(buf, p.Destination[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Payload)))
	buf = append(buf, p.Payload...)
	if p.Signature != nil {
		buf = append(buf, 0x01)
		buf = append(buf, p.Signature...)
	} else {
		buf = append(buf, 0x00)
	}
	return buf, nil
}

// Decode parses an encoded packet.  It is strict: short buffers,
// payload lengths overrunning the buffer, unknown type bytes, and
// truncated signatures all fail.
func Decode(data []byte) (*Packet, error) {
	if len(data) < headerSize {
		return nil, &errors.PacketError{Reason: "packet too short"}
	}

	typ, err := typeFromByte(data[0])
	if err != nil {
		return nil, err
	}

	var dest identity.Hash
	copy(dest[:], data[1:1+identity.HashSize])

	payloadLen := int(binary.BigEndian.Uint16(data[1+identity.HashSize : headerSize]))
	rest := data[headerSize:]
	if len(rest) < payloadLen+1 {
		return nil, &errors.PacketError{Reason: "invalid payload length"}
	}

	payload := make([]byte, payloadLen)
	copy(payload, rest[:payloadLen])
	rest = rest[payloadLen:]

	var signature []byte
	switch rest[0] {
	case 0x00:
	case 0x01:
		if len(rest[1:]) < identity.SignatureSize {
			return nil, &errors.PacketError{Reason: "invalid signature length"}
		}
		signature = make([]byte, identity.SignatureSize)
		copy(signature, rest[1:1+identity.SignatureSize])
	default:
		return nil, &errors.PacketError{Reason: fmt.Sprintf("invalid signature flag: %d", rest[0])}
	}

	return &Packet{
		Type:        typ,
		Destination: dest,
		Payload:     payload,
		Signature:   signature,
	}, nil
}

// SignableData returns the type‖destination‖length‖payload prefix that
// signatures cover.  The signature field itself is never included, so
// signing and verification see identical bytes.
func (p *Packet) SignableData() []byte {
	buf := make([]byte, 0, headerSize+len(p.Payload))
	buf = append(buf, byte(p.Type))
	buf = append(buf, p.Destination[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Payload)))
	buf = append(buf, p.Payload...)
	return buf
}
