package buildinfo

import "testing"

func set(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })
	Version, Commit, Date = version, commit, date
}

func TestShort(t *testing.T) {
	tests := []struct {
		version, commit, want string
	}{
		{"dev", "unknown", "dev"},
		{"dev", "abc123", "abc123"},
		{"v1.0.0", "abc123", "v1.0.0"},
		{"", "", "dev"},
	}
	for _, tt := range tests {
		set(t, tt.version, tt.commit, "unknown")
		if got := Short(); got != tt.want {
			t.Fatalf("Short() with %q/%q = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}
}

func TestLine(t *testing.T) {
	set(t, "v1.0.0", "abc123", "2026-01-02")
	if got, want := Line(), "v1.0.0 abc123 2026-01-02"; got != want {
		t.Fatalf("Line() = %q, want %q", got, want)
	}
	set(t, "dev", "unknown", "unknown")
	if got, want := Line(), "dev"; got != want {
		t.Fatalf("Line() = %q, want %q", got, want)
	}
}
