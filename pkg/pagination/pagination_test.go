package pagination

import "testing"

func TestNormalizeLimit(t *testing.T) {
	cases := []struct {
		name string
		in   int
		want int
	}{
		{"zero uses default", 0, DefaultLimit},
		{"negative uses default", -5, DefaultLimit},
		{"within range passes through", 42, 42},
		{"above max caps", 10000, MaxLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeLimit(tc.in); got != tc.want {
				t.Fatalf("NormalizeLimit(%d) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestLimitWithBuffer(t *testing.T) {
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("expected 11, got %d", got)
	}
}

func TestNormalizeCursor(t *testing.T) {
	if got := NormalizeCursor("  o1  "); got != "o1" {
		t.Fatalf("expected trimmed cursor, got %q", got)
	}
	if got := NormalizeCursor("   "); got != "" {
		t.Fatalf("expected empty cursor, got %q", got)
	}
}
