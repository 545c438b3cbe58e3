// Package pcm reads and writes interleaved little endian signed samples.
package pcm

// Sample returns the sample stored in the first bits/8 bytes of b.
func Sample(b []byte, bits int) int32 {
	switch bits {
	case 8:
		return int32(int8(b[0]))
	case 16:
		return int32(int16(uint16(b[0]) | uint16(b[1])<<8))
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		return v << 8 >> 8
	case 32:
		return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	}
	return 0
}

// PutSample stores v into the first bits/8 bytes of b.
func PutSample(b []byte, bits int, v int32) {
	switch bits {
	case 8:
		b[0] = byte(v)
	case 16:
		b[0], b[1] = byte(v), byte(v>>8)
	case 24:
		b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
	case 32:
		b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
}

// Convert changes bit depth of v. Widening shifts left, narrowing keeps the
// most significant bits.
func Convert(v int32, from, to int) int32 {
	if from == to {
		return v
	}
	if to > from {
		return v << uint(to-from)
	}
	return v >> uint(from-to)
}

// Supported reports whether bits is a sample size this package handles.
func Supported(bits int) bool {
	return bits == 8 || bits == 16 || bits == 24 || bits == 32
}
