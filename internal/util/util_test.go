package util

import "testing"

func TestBlake3HashHex(t *testing.T) {
	a := Blake3HashHex([]byte("requests>=2.32.3\n"))
	b := Blake3HashHex([]byte("requests>=2.32.3\n"))
	c := Blake3HashHex([]byte("requests>=2.32.4\n"))

	if a != b {
		t.Error("digest must be deterministic")
	}
	if a == c {
		t.Error("distinct content must not collide")
	}
	if len(a) != 64 {
		t.Errorf("hex digest length = %d", len(a))
	}
}
