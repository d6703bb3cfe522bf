package util

import "testing"

func TestFnv64a(t *testing.T) {
	// Known FNV-1a vectors.
	cases := []struct {
		in   string
		want uint64
	}{
		{"", 0xcbf29ce484222325},
		{"a", 0xaf63dc4c8601ec8c},
		{"foobar", 0x85944171f73967e8},
	}
	for _, tc := range cases {
		if got := Fnv64a([]byte(tc.in)); got != tc.want {
			t.Fatalf("Fnv64a(%q) = %#x, want %#x", tc.in, got, tc.want)
		}
	}

	if Fnv64a([]byte("revenue:s1")) == Fnv64a([]byte("revenue:s2")) {
		t.Fatal("distinct inputs must not collide in this trivial case")
	}
}
