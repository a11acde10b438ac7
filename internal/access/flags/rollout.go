package flags

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Bucket maps (flagKey, subject) to a stable integer in [0, 100).
//
// The bucket is a pure function of its inputs: the same pair lands in the
// same bucket on every node and every restart, with no stored state. Raising
// rollout_percentage only ever adds subjects to the enabled population,
// because a subject enabled at N stays below any threshold above N.
func Bucket(flagKey, subject string) int {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(flagKey))
	h.Write([]byte{0})
	h.Write([]byte(subject))
	sum := h.Sum(nil)
	return int(binary.BigEndian.Uint64(sum[:8]) % 100)
}
