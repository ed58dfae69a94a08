// Package fingerprint computes the stage identity digests that key the
// cache store. A fingerprint covers a stage identifier, the ordered
// fingerprints of its upstream inputs, and a canonical serialization of the
// stage's effective configuration; equal fingerprints mean the stage would
// produce the same output.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Size is the digest width in bytes.
const Size = sha256.Size

// Digest is an opaque fixed-width stage fingerprint.
type Digest [Size]byte

// Zero is the empty digest; no committed stage ever produces it.
var Zero Digest

// String renders the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short renders a truncated form for logs and progress messages.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:6])
}

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool {
	return d == Zero
}

// Parse decodes a lowercase-hex digest produced by String.
func Parse(value string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(value)
	if err != nil {
		return Zero, fmt.Errorf("parse fingerprint: %w", err)
	}
	if len(raw) != Size {
		return Zero, fmt.Errorf("parse fingerprint: expected %d bytes, got %d", Size, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// New computes the fingerprint for a stage invocation. The digest is
// order-sensitive over upstream, so reordering inputs changes the identity.
// Every field is length-framed to keep distinct inputs from colliding by
// concatenation.
func New(stageID string, upstream []Digest, config []byte) Digest {
	h := sha256.New()
	h.Write([]byte("cleave/fingerprint/v1\x00"))
	writeFrame(h, []byte(stageID))

	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(upstream)))
	h.Write(count[:])
	for _, up := range upstream {
		h.Write(up[:])
	}

	writeFrame(h, config)

	var d Digest
	h.Sum(d[:0])
	return d
}

func writeFrame(h interface{ Write([]byte) (int, error) }, payload []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(payload)))
	h.Write(length[:])
	h.Write(payload)
}

// CanonicalConfig serializes a stage configuration value deterministically
// for fingerprinting. TOML marshaling follows struct field declaration
// order, so the same value always yields the same bytes.
func CanonicalConfig(value any) ([]byte, error) {
	payload, err := toml.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("canonicalize config: %w", err)
	}
	return payload, nil
}
