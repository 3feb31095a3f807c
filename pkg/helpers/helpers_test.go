package helpers

import "testing"

func TestHexToBytes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"with 0x prefix", "0x0a0b0c", []byte{0x0a, 0x0b, 0x0c}, false},
		{"without prefix", "0a0b0c", []byte{0x0a, 0x0b, 0x0c}, false},
		{"empty", "", []byte{}, false},
		{"odd length", "0x0a0", nil, true},
		{"invalid hex", "0xzz", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToBytes(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("HexToBytes(%q) = %x, want %x", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("HexToBytes(%q) = %x, want %x", tt.input, got, tt.want)
				}
			}
		})
	}
}

func TestBytesToHex(t *testing.T) {
	tests := []struct {
		input []byte
		want  string
	}{
		{[]byte{0x0a, 0x0b, 0x0c}, "0x0a0b0c"},
		{[]byte{}, "0x"},
		{[]byte{0xff}, "0xff"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := BytesToHex(tt.input); got != tt.want {
				t.Errorf("BytesToHex(%x) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestHexToBytesRoundtrip(t *testing.T) {
	want := []byte{0x01, 0x02, 0xff, 0x00, 0xab}
	got, err := HexToBytes(BytesToHex(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("roundtrip = %x, want %x", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("roundtrip = %x, want %x", got, want)
		}
	}
}
