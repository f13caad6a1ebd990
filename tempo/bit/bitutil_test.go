package bit

import (
	"testing"
)

func TestIsSet(t *testing.T) {
	tests := []struct {
		value    uint8
		index    uint8
		expected bool
	}{
		{0b10101010, 0, false},
		{0b10101010, 1, true},
		{0b10101010, 2, false},
		{0b10101010, 7, true},
		{0b10101010, 8, false},
		{0b10101010, 255, false},
	}

	for _, tt := range tests {
		result := IsSet(tt.index, tt.value)
		if result != tt.expected {
			t.Errorf("IsSet(%d, %08b) = %v; want %v", tt.index, tt.value, result, tt.expected)
		}
	}
}

func TestIsSet32(t *testing.T) {
	tests := []struct {
		value    uint32
		index    uint8
		expected bool
	}{
		{0x80000000, 31, true},
		{0x80000000, 30, false},
		{0x00010000, 16, true},
		{0xFFFFFFFF, 32, false},
	}

	for _, tt := range tests {
		result := IsSet(tt.index, tt.value)
		if result != tt.expected {
			t.Errorf("IsSet(%d, %08X) = %v; want %v", tt.index, tt.value, result, tt.expected)
		}
	}
}

func TestClear(t *testing.T) {
	tests := []struct {
		value    uint8
		index    uint8
		expected uint8
	}{
		{0b10101010, 1, 0b10101000},
		{0b10101010, 7, 0b00101010},
		{0b10101010, 8, 0b10101010},
		{0b10101010, 255, 0b10101010},
	}

	for _, tt := range tests {
		result := Clear(tt.index, tt.value)
		if result != tt.expected {
			t.Errorf("Clear(%d, %08b) = %08b; want %08b", tt.index, tt.value, result, tt.expected)
		}
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		value    uint16
		index    uint8
		expected uint16
	}{
		{0b10101010, 0, 0b10101011},
		{0b10101010, 2, 0b10101110},
		{0b10101010, 7, 0b10101010},
		{0b10101010, 14, 0b0100000010101010},
		{0b10101010, 16, 0b10101010},
	}

	for _, tt := range tests {
		result := Set(tt.index, tt.value)
		if result != tt.expected {
			t.Errorf("Set(%d, %016b) = %016b; want %016b", tt.index, tt.value, result, tt.expected)
		}
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		value    uint16
		high     uint8
		low      uint8
		expected uint16
	}{
		{0b11010110, 6, 4, 0b101},
		{0b11010110, 1, 0, 0b10},
		{0x4000, 14, 14, 1},
		{0xABCD, 15, 0, 0xABCD},
		{0xABCD, 15, 8, 0xAB},
	}

	for _, tt := range tests {
		result := Extract(tt.value, tt.high, tt.low)
		if result != tt.expected {
			t.Errorf("Extract(%016b, %d, %d) = %b; want %b", tt.value, tt.high, tt.low, result, tt.expected)
		}
	}
}

func TestMask(t *testing.T) {
	if got := Mask[uint32](5); got != 0x1F {
		t.Errorf("Mask[uint32](5) = %X; want 1F", got)
	}
	if got := Mask[uint32](32); got != 0xFFFFFFFF {
		t.Errorf("Mask[uint32](32) = %X; want FFFFFFFF", got)
	}
	if got := Mask[uint16](0); got != 0 {
		t.Errorf("Mask[uint16](0) = %X; want 0", got)
	}
}

func TestLowest(t *testing.T) {
	tests := []struct {
		value    uint32
		expected uint8
		ok       bool
	}{
		{0, 0, false},
		{0b0110, 1, true},
		{0x80000000, 31, true},
		{1, 0, true},
	}

	for _, tt := range tests {
		index, ok := Lowest(tt.value)
		if index != tt.expected || ok != tt.ok {
			t.Errorf("Lowest(%032b) = (%d, %v); want (%d, %v)", tt.value, index, ok, tt.expected, tt.ok)
		}
	}
}

func TestFromBool(t *testing.T) {
	if FromBool(true) != 1 || FromBool(false) != 0 {
		t.Errorf("FromBool mismatch")
	}
}
