package index

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestSafeJoin(t *testing.T) {
	root := filepath.Join(t.TempDir(), "w1")
	cases := []struct {
		rel  string
		want string
		ok   bool
	}{
		{rel: "output/a.csv", want: filepath.Join(root, "output", "a.csv"), ok: true},
		{rel: "output\\b.csv", want: filepath.Join(root, "output", "b.csv"), ok: true},
		{rel: "output/../a.csv", want: filepath.Join(root, "a.csv"), ok: true},
		{rel: "../w2/a.csv"},
		{rel: "output/../../etc/passwd"},
		{rel: "/etc/passwd"},
		{rel: ".."},
		{rel: ""},
	}
	for _, tc := range cases {
		got, err := SafeJoin(root, tc.rel)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("SafeJoin(%q) = %q, %v; want %q", tc.rel, got, err, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrOutsideRoot) {
			t.Fatalf("SafeJoin(%q) should be rejected, got %q", tc.rel, got)
		}
	}
}

func TestValidSegment(t *testing.T) {
	for _, name := range []string{"w1", "release-01", "r.1"} {
		if !ValidSegment(name) {
			t.Fatalf("%q should be valid", name)
		}
	}
	for _, name := range []string{"", ".", "..", "a/b", "a\\b"} {
		if ValidSegment(name) {
			t.Fatalf("%q should be invalid", name)
		}
	}
}
