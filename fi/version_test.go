package fi

import "testing"

func TestVersionCompare(t *testing.T) {
	cases := []struct {
		a, b Version
		want int
	}{
		{Version{1, 5}, Version{1, 5}, 0},
		{Version{1, 4}, Version{1, 5}, -1},
		{Version{1, 6}, Version{1, 5}, 1},
		{Version{2, 0}, Version{1, 9}, 1},
		{Version{0, 9}, Version{1, 0}, -1},
	}
	for _, tc := range cases {
		if got := tc.a.Compare(tc.b); got != tc.want {
			t.Fatalf("Compare(%s, %s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestVersionGE(t *testing.T) {
	if !DefaultAPIVersion.GE(Version{Major: 1, Minor: 5}) {
		t.Fatalf("default version %s should satisfy 1.5", DefaultAPIVersion)
	}
	if (Version{Major: 1, Minor: 4}).GE(Version{Major: 1, Minor: 5}) {
		t.Fatalf("1.4 should not satisfy 1.5")
	}
}

func TestVersionString(t *testing.T) {
	if got := (Version{Major: 1, Minor: 22}).String(); got != "1.22" {
		t.Fatalf("unexpected version string %q", got)
	}
}
