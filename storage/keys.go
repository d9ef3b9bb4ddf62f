package storage

import (
	"encoding/binary"
	"time"
)

const keySep = byte(0x00)

// joinKey builds a composite bucket key from parts separated by NUL.
// IDs are UUIDs and never contain NUL.
func joinKey(parts ...string) []byte {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	key := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			key = append(key, keySep)
		}
		key = append(key, p...)
	}
	return key
}

// timeKey encodes a timestamp big-endian so bucket order is time order.
func timeKey(t time.Time) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(t.UnixNano()))
	return b[:]
}

// prefixedTimeKey builds prefix|timestamp|suffix for ordered history
// buckets (sightings, drift).
func prefixedTimeKey(prefix string, t time.Time, suffix string) []byte {
	key := make([]byte, 0, len(prefix)+1+8+1+len(suffix))
	key = append(key, prefix...)
	key = append(key, keySep)
	key = append(key, timeKey(t)...)
	key = append(key, keySep)
	key = append(key, suffix...)
	return key
}

// keyPrefix is prefix|, for cursor seeks over history buckets.
func keyPrefix(prefix string) []byte {
	return append([]byte(prefix), keySep)
}
