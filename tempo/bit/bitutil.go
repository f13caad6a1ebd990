package bit

import "math/bits"

// Unsigned is the set of register widths the timing core works with.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// IsSet will check if the bit at the specified index is set to 1 or not.
// Indexes past the width of the value are never set.
func IsSet[T Unsigned](index uint8, value T) bool {
	if int(index) >= width[T]() {
		return false
	}
	return (value>>index)&1 == 1
}

// Set will return the passed value with the bit at the specified index set to 1.
func Set[T Unsigned](index uint8, value T) T {
	if int(index) >= width[T]() {
		return value
	}
	return value | (T(1) << index)
}

// Clear will return the passed value with the bit at the specified index set to 0.
func Clear[T Unsigned](index uint8, value T) T {
	if int(index) >= width[T]() {
		return value
	}
	return value &^ (T(1) << index)
}

// Extract extracts bits from highBit to lowBit (inclusive)
// Example: Extract(uint16(0b11010110), 6, 4) -> 0b101 (extracts bits 6, 5, 4)
func Extract[T Unsigned](value T, highBit, lowBit uint8) T {
	w := highBit - lowBit + 1
	if int(w) >= width[T]() {
		return value >> lowBit
	}
	mask := (T(1) << w) - 1
	return (value >> lowBit) & mask
}

// Mask returns a value with the lowest n bits set.
func Mask[T Unsigned](n int) T {
	if n >= width[T]() {
		return ^T(0)
	}
	return (T(1) << n) - 1
}

// Lowest returns the index of the lowest set bit. ok is false when value is zero.
func Lowest(value uint32) (index uint8, ok bool) {
	if value == 0 {
		return 0, false
	}
	return uint8(bits.TrailingZeros32(value)), true
}

// FromBool returns 1 for true and 0 for false.
func FromBool(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func width[T Unsigned]() int {
	var zero T
	return bits.Len64(uint64(^zero))
}
