package bytesize

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"0", 0},
		{"1024", 1024},
		{"1Ki", KiB},
		{"512Mi", 512 * MiB},
		{"50MB", 50 * MB},
		{"1Gi", GiB},
		{"1.5Gi", ByteSize(1.5 * float64(GiB))},
		{"2TB", 2 * TB},
		{" 100 mb ", 100 * MB},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "10XB", "-5MB"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", in)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{512, "512B"},
		{2 * KiB, "2.00KiB"},
		{512 * MiB, "512.00MiB"},
		{GiB, "1.00GiB"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", uint64(tt.in), got, tt.want)
		}
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("512Mi")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if b != 512*MiB {
		t.Errorf("got %d, want %d", b, 512*MiB)
	}
}
