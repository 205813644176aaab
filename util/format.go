package util

import "encoding/hex"

// ShortHex renders the first four bytes of b as hex followed by "…",
// for compact destination hashes in log lines.  Short inputs are
// rendered in full.
func ShortHex(b []byte) string {
	if len(b) <= 4 {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:4]) + "…"
}
