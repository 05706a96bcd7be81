package document

import (
	"github.com/google/uuid"
)

// NewID generates a 128-bit, time-prefixed monotonic identifier (DESIGN
// NOTES "Identifier generator"). It wraps uuid.NewV7, which already
// provides millisecond time-prefix plus a process-local monotonic counter
// for sub-millisecond ordering within one process (grounded on the
// teacher's internal/store/id.go newUUIDv7).
//
// Inter-process monotonicity is not promised, matching the design note.
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global entropy source errors; fall
		// back to a random v4 rather than panic, preserving uniqueness
		// (property 1) at the cost of time-ordering locality.
		return uuid.New()
	}
	return id
}

// ParseID parses a textual identifier, requiring it to be a valid UUID.
// The version is not restricted: callers may supply their own explicit
// _id (e.g. from an external system) that need not be a v7 UUID.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, wrap(err, withField(FieldID))
	}
	return id, nil
}

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ShortID derives a short, URL-friendly rendering of an identifier's low
// 60 bits using Crockford base32, grounded on internal/store/id.go's
// shortIDFromUUIDBits. This is a display convenience, not the canonical
// on-disk key (which is always the full 16-byte identifier, §3).
func ShortID(id uuid.UUID) string {
	// Take the low 8 bytes (64 bits), encode the low 60 bits (12 chars * 5
	// bits) to match shortIDLength=12 in the teacher's derivation.
	var v uint64
	for i := 8; i < 16; i++ {
		v = v<<8 | uint64(id[i])
	}
	v &= (uint64(1) << 60) - 1

	buf := make([]byte, 12)
	for i := 11; i >= 0; i-- {
		buf[i] = crockfordAlphabet[v&0x1F]
		v >>= 5
	}
	return string(buf)
}
