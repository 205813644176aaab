package packet

import (
	"bytes"
	"testing"

	"retsh/internal/identity"
)

func testHash(fill byte) identity.Hash {
	var h identity.Hash
	for i := range h {
		h[i] = fill
	}
	return h
}

func TestEncodeDecode(t *testing.T) {
	dest := testHash(42)
	payload := []byte("hello, overlay")

	pkt := Data(dest, payload)
	encoded, err := pkt.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Type != TypeData {
		t.Errorf("Type = %d, want %d", decoded.Type, TypeData)
	}
	if decoded.Destination != dest {
		t.Error("destination not preserved")
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Errorf("payload = %q, want %q", decoded.Payload, payload)
	}
	if decoded.Signature != nil {
		t.Error("unexpected signature on unsigned packet")
	}
}

func TestEncodeDecode_WithSignature(t *testing.T) {
	sig := bytes.Repeat([]byte{0xAB}, identity.SignatureSize)
	pkt := Data(testHash(1), []byte("signed")).WithSignature(sig)

	encoded, err := pkt.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded.Signature, sig) {
		t.Error("signature not preserved")
	}
}

func TestEncodeDecode_EmptyPayload(t *testing.T) {
	pkt := Announce(testHash(7), nil)
	encoded, err := pkt.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != TypeAnnounce {
		t.Errorf("Type = %d, want %d", decoded.Type, TypeAnnounce)
	}
	if len(decoded.Payload) != 0 {
		t.Errorf("payload length = %d, want 0", len(decoded.Payload))
	}
}

func TestDecode_TooShort(t *testing.T) {
	if _, err := Decode(make([]byte, 10)); err == nil {
		t.Error("expected error for 10-byte buffer")
	}
	if _, err := Decode(nil); err == nil {
		t.Error("expected error for empty buffer")
	}
}

func TestDecode_UnknownType(t *testing.T) {
	pkt := Data(testHash(3), []byte("x"))
	encoded, _ := pkt.Encode()
	encoded[0] = 0x77

	if _, err := Decode(encoded); err == nil {
		t.Error("expected error for unknown type byte")
	}
}

func TestDecode_PayloadOverrun(t *testing.T) {
	pkt := Data(testHash(3), []byte("abcdef"))
	encoded, _ := pkt.Encode()

	// Declare a payload longer than the remaining buffer.
	encoded[33] = 0xFF
	encoded[34] = 0xFF

	if _, err := Decode(encoded); err == nil {
		t.Error("expected error for overrunning payload length")
	}
}

func TestDecode_TruncatedSignature(t *testing.T) {
	sig := bytes.Repeat([]byte{0x01}, identity.SignatureSize)
	pkt := Data(testHash(3), []byte("payload")).WithSignature(sig)
	encoded, _ := pkt.Encode()

	if _, err := Decode(encoded[:len(encoded)-10]); err == nil {
		t.Error("expected error for truncated signature")
	}
}

func TestDecode_BadSignatureFlag(t *testing.T) {
	pkt := Data(testHash(3), []byte("p"))
	encoded, _ := pkt.Encode()
	encoded[len(encoded)-1] = 0x05

	if _, err := Decode(encoded); err == nil {
		t.Error("expected error for invalid signature flag")
	}
}

func TestEncode_SignatureLengthEnforced(t *testing.T) {
	pkt := Data(testHash(1), []byte("p")).WithSignature([]byte("short"))
	if _, err := pkt.Encode(); err == nil {
		t.Error("expected error for non-64-byte signature")
	}
}

func TestSignableData_ExcludesSignature(t *testing.T) {
	id := identity.Generate()
	pkt := Data(testHash(9), []byte("verify me"))

	sig := id.Sign(pkt.SignableData())
	pkt.WithSignature(sig)

	encoded, err := pkt.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// The signable prefix must be identical on both ends.
	if !bytes.Equal(decoded.SignableData(), pkt.SignableData()) {
		t.Fatal("signable data differs after round trip")
	}
	if err := id.Verify(decoded.SignableData(), decoded.Signature); err != nil {
		t.Errorf("signature does not verify after round trip: %v", err)
	}
}
