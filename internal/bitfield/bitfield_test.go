package bitfield

import "testing"

type frameFlags struct {
	Allocated bool   `bitfield:"1"`
	Padding   bool   `bitfield:"1"`
	Order     uint32 `bitfield:"8"`
}

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		flags frameFlags
		want  uint64
	}{
		{"all zero", frameFlags{}, 0},
		{"allocated only", frameFlags{Allocated: true}, 0x1},
		{"padding only", frameFlags{Padding: true}, 0x2},
		{"order set", frameFlags{Allocated: true, Order: 10}, 0x1 | (10 << 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := Pack(tt.flags)
			if err != nil {
				t.Fatalf("Pack: %v", err)
			}
			if packed != tt.want {
				t.Fatalf("Pack = %#x, want %#x", packed, tt.want)
			}

			var out frameFlags
			if err := Unpack(packed, &out); err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			if out != tt.flags {
				t.Fatalf("Unpack = %+v, want %+v", out, tt.flags)
			}
		})
	}
}

func TestPackOverflow(t *testing.T) {
	_, err := Pack(frameFlags{Order: 1 << 20})
	if err == nil {
		t.Fatal("expected overflow error packing a value too large for its bit width")
	}
}

func TestPackRequiresStruct(t *testing.T) {
	if _, err := Pack(42); err == nil {
		t.Fatal("expected error packing a non-struct")
	}
}
