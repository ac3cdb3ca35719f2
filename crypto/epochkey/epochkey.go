// Package epochkey derives the per-epoch AES key both the sensor and the
// ingestion server compute independently, so that the key never travels on
// the wire.
package epochkey

import (
	"crypto/sha256"
	"encoding/binary"
)

// KeySize is the length of both the long-term key and the derived epoch key.
const KeySize = 16

// Epoch returns floor(counter / interval), the index that selects the
// current key. interval must be at least 1.
func Epoch(counter uint64, interval uint32) uint32 {
	return uint32(counter / uint64(interval))
}

// Derive computes SHA-256(BE32(epoch) || key)[:16], the epoch key used to
// seal or open the frame emitted with the given counter.
func Derive(counter uint64, key [KeySize]byte, interval uint32) [KeySize]byte {
	epoch := Epoch(counter, interval)

	var seed [4 + KeySize]byte
	binary.BigEndian.PutUint32(seed[:4], epoch)
	copy(seed[4:], key[:])

	digest := sha256.Sum256(seed[:])

	var out [KeySize]byte
	copy(out[:], digest[:KeySize])
	return out
}
