package register

import (
	"errors"
	"testing"
)

func TestComputeWrite(t *testing.T) {
	tests := []struct {
		name      string
		old       Value
		known     bool
		requested Value
		mask      Mask
		want      Value
		wantErr   error
	}{
		{
			name:      "low nibble from requested",
			old:       0xA5,
			known:     true,
			requested: 0x3F,
			mask:      0x0F,
			want:      0xAF,
		},
		{
			name:      "full mask overwrites",
			old:       0xA5,
			known:     true,
			requested: 0x3F,
			mask:      FullMask,
			want:      0x3F,
		},
		{
			name:      "zero mask is a no-op",
			old:       0xA5,
			known:     true,
			requested: 0x3F,
			mask:      0x00,
			want:      0xA5,
		},
		{
			name:      "single bit set",
			old:       0x00,
			known:     true,
			requested: 0xFF,
			mask:      0x02,
			want:      0x02,
		},
		{
			name:      "single bit cleared",
			old:       0xFF,
			known:     true,
			requested: 0x00,
			mask:      0x80,
			want:      0x7F,
		},
		{
			name:      "unknown base with full mask",
			known:     false,
			requested: 0x12,
			mask:      FullMask,
			want:      0x12,
		},
		{
			name:      "unknown base with narrow mask",
			known:     false,
			requested: 0x12,
			mask:      0x0F,
			wantErr:   ErrStaleBaseUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeWrite(tt.old, tt.known, tt.requested, tt.mask)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ComputeWrite() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ComputeWrite() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ComputeWrite() = 0x%02X, want 0x%02X", got, tt.want)
			}
		})
	}
}

// Every (old, mask) pair must keep unmasked bits and take masked bits from requested.
func TestComputeWriteBitProperty(t *testing.T) {
	requestedSamples := []Value{0x00, 0x3F, 0x5A, 0xC3, 0xFF}
	for old := 0; old < 256; old++ {
		for mask := 0; mask < 256; mask++ {
			for _, req := range requestedSamples {
				got, err := ComputeWrite(Value(old), true, req, Mask(mask))
				if err != nil {
					t.Fatalf("ComputeWrite(0x%02X, 0x%02X, 0x%02X) error = %v", old, req, mask, err)
				}
				if uint8(got)&^uint8(mask) != uint8(old)&^uint8(mask) {
					t.Fatalf("unmasked bits changed: old=0x%02X mask=0x%02X got=0x%02X", old, mask, got)
				}
				if uint8(got)&uint8(mask) != uint8(req)&uint8(mask) {
					t.Fatalf("masked bits wrong: req=0x%02X mask=0x%02X got=0x%02X", req, mask, got)
				}
			}
		}
	}
}

func TestComputeWriteWithoutMaskReturnsRequested(t *testing.T) {
	for old := 0; old < 256; old++ {
		got, err := ComputeWrite(Value(old), true, 0x42, FullMask)
		if err != nil || got != 0x42 {
			t.Fatalf("ComputeWrite(0x%02X, 0x42, none) = 0x%02X, %v", old, got, err)
		}
	}
}
