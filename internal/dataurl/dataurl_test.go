package dataurl

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0x00, 0x10, 0xff, 0xd9}
	s := Encode("image/jpeg", payload)

	mt, data, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if mt != "image/jpeg" {
		t.Errorf("media type = %q, want image/jpeg", mt)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("payload mismatch")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no scheme", "image/png;base64,AAAA"},
		{"no comma", "data:image/png;base64"},
		{"bad base64", "data:image/png;base64,!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Decode(tt.in); !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode(%q) error = %v, want ErrMalformed", tt.in, err)
			}
		})
	}
}
