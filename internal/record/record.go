// Package record implements the on-flash framing shared by every persisted
// struct: a leading format-version byte, the payload, and a trailing CRC32
// over everything before it. The checksum algorithm (IEEE 802.3 reflected
// polynomial, init and final XOR 0xFFFFFFFF) and the little-endian trailer
// are fixed: external tooling reads flash images written by devices in the
// field, so the encoding must stay bit-exact.
package record

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	// Overhead is the framing cost added to a payload: version byte
	// plus CRC32 trailer.
	Overhead = 1 + 4
	// NameField is the encoded width of a bounded name: up to
	// NameField-1 characters plus a NUL terminator, matching the
	// 15-character key limit of the store.
	NameField = 16
)

var (
	ErrTruncated = errors.New("record truncated")
	ErrChecksum  = errors.New("record checksum mismatch")
)

// Checksum computes the CRC32 used by every record: IEEE 802.3 polynomial,
// table-driven, initial value 0xFFFFFFFF, final XOR 0xFFFFFFFF.
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Size returns the full encoded record size for a payload of n bytes.
func Size(n int) int {
	return n + Overhead
}

// Seal frames a payload: [version u8][payload][crc32 u32 LE], with the
// checksum taken over version and payload.
func Seal(version uint8, payload []byte) []byte {
	out := make([]byte, 0, Size(len(payload)))
	out = append(out, version)
	out = append(out, payload...)
	var crc [4]byte
	binary.LittleEndian.PutUint32(crc[:], Checksum(out))
	return append(out, crc[:]...)
}

// Open validates a framed record and returns its version and payload.
// The payload aliases raw; callers must copy if they retain it. Returns
// ErrTruncated when raw is shorter than the framing, ErrChecksum when the
// trailer does not match the preceding bytes.
func Open(raw []byte) (version uint8, payload []byte, err error) {
	if len(raw) < Overhead {
		return 0, nil, ErrTruncated
	}
	body := raw[:len(raw)-4]
	stored := binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if Checksum(body) != stored {
		return 0, nil, ErrChecksum
	}
	return body[0], body[1:], nil
}

// PutName writes s into dst truncated to len(dst)-1 bytes and always
// NUL-terminated; remaining bytes are zeroed so encodings are
// deterministic.
func PutName(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(s)
	if n > len(dst)-1 {
		n = len(dst) - 1
	}
	copy(dst, s[:n])
}

// GetName reads a NUL-terminated name from src.
func GetName(src []byte) string {
	for i, b := range src {
		if b == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}
