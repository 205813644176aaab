// Package identity implements the cryptographic identity of a retsh
// peer: an Ed25519 keypair plus a destination hash derived from the
// public key.  The hash is the only address the rest of the stack ever
// sees; full overlay destinations stay inside the transport layer.
package identity

import (
	stded25519 "crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"retsh/internal/errors"
)

// HashSize is the length of a destination hash in bytes.
const HashSize = 32

// KeySize is the length of both the private seed and public key.
const KeySize = 32

// SignatureSize is the length of an Ed25519 signature.
const SignatureSize = 64

// Hash is a 32-byte destination hash: SHA-256 of either a public key
// (application identities) or an overlay destination string (transport
// routing keys).
type Hash [HashSize]byte

// String renders the hash as lowercase hex.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// HashFromHex parses a 64-character hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, &errors.IdentityError{Op: "parse-hash", Err: err}
	}
	if len(b) != HashSize {
		return h, &errors.IdentityError{
			Op:  "parse-hash",
			Err: fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b)),
		}
	}
	copy(h[:], b)
	return h, nil
}

// Identity is an Ed25519 keypair.  It is immutable once constructed:
// either both keys are present and consistent, or construction failed.
type Identity struct {
	priv stded25519.PrivateKey
	pub  stded25519.PublicKey
}

// Generate creates a new random identity.
func Generate() *Identity {
	seed := make([]byte, KeySize)
	if _, err := rand.Read(seed); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("identity: reading randomness: %v", err))
	}
	priv := stded25519.NewKeyFromSeed(seed)
	return &Identity{priv: priv, pub: priv.Public().(stded25519.PublicKey)}
}

// FromBytes reconstructs an identity from its 32-byte private seed.
func FromBytes(privateKey []byte) (*Identity, error) {
	if len(privateKey) != KeySize {
		return nil, &errors.IdentityError{
			Op:  "from-bytes",
			Err: fmt.Errorf("private key must be %d bytes, got %d", KeySize, len(privateKey)),
		}
	}
	priv := stded25519.NewKeyFromSeed(privateKey)
	return &Identity{priv: priv, pub: priv.Public().(stded25519.PublicKey)}, nil
}

// PublicKey returns the 32-byte public verification key.
func (id *Identity) PublicKey() []byte {
	out := make([]byte, KeySize)
	copy(out, id.pub)
	return out
}

// PrivateKey returns the 32-byte private seed.  The public key and
// destination hash are always re-derivable from it.
func (id *Identity) PrivateKey() []byte {
	out := make([]byte, KeySize)
	copy(out, id.priv.Seed())
	return out
}

// DestinationHash returns SHA-256 of the public key.  It is recomputed
// on every call; two identities share a hash only if their keys match.
func (id *Identity) DestinationHash() Hash {
	return HashFromPublicKey(id.pub)
}

// DestinationHex returns the destination hash as a hex string.
func (id *Identity) DestinationHex() string { return id.DestinationHash().String() }

// Sign produces a 64-byte signature over data.
func (id *Identity) Sign(data []byte) []byte {
	return stded25519.Sign(id.priv, data)
}

// Verify checks a signature made by this identity.
func (id *Identity) Verify(data, signature []byte) error {
	if len(signature) != SignatureSize {
		return &errors.IdentityError{
			Op:  "verify",
			Err: fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(signature)),
		}
	}
	if !stded25519.Verify(id.pub, data, signature) {
		return &errors.IdentityError{Op: "verify", Err: errors.New("signature verification failed")}
	}
	return nil
}

// VerifyExternal checks a signature against a peer's public key without
// holding that peer's private key.
func VerifyExternal(publicKey, data, signature []byte) error {
	if len(publicKey) != KeySize {
		return &errors.IdentityError{
			Op:  "verify-external",
			Err: fmt.Errorf("public key must be %d bytes, got %d", KeySize, len(publicKey)),
		}
	}
	if len(signature) != SignatureSize {
		return &errors.IdentityError{
			Op:  "verify-external",
			Err: fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(signature)),
		}
	}
	if !stded25519.Verify(stded25519.PublicKey(publicKey), data, signature) {
		return &errors.IdentityError{Op: "verify-external", Err: errors.New("signature verification failed")}
	}
	return nil
}

// HashFromPublicKey computes the destination hash for any 32-byte
// public key.
func HashFromPublicKey(publicKey []byte) Hash {
	return Hash(sha256.Sum256(publicKey))
}

// HashFromDestination computes the routing hash of an overlay
// destination string.
func HashFromDestination(dest string) Hash {
	return Hash(sha256.Sum256([]byte(dest)))
}

// SaveToFile writes the private seed to path with owner-only
// permissions.
func (id *Identity) SaveToFile(path string) error {
	if err := os.WriteFile(path, id.PrivateKey(), 0o600); err != nil {
		return &errors.IdentityError{Op: "save", Err: err}
	}
	return nil
}

// LoadFromFile reads a 32-byte private seed from path.
func LoadFromFile(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.IdentityError{Op: "load", Err: err}
	}
	return FromBytes(raw)
}
