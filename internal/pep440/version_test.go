package pep440

import "testing"

func TestParsePublic(t *testing.T) {
	tests := []struct {
		in     string
		public string
	}{
		{"2.32.3", "2.32.3"},
		{"v1.0", "1.0"},
		{"1.0.0rc1", "1.0.0rc1"},
		{"1.0.0.RC1", "1.0.0rc1"},
		{"1.0.0-alpha2", "1.0.0a2"},
		{"1.0.0beta1", "1.0.0b1"},
		{"2.0.0.post1", "2.0.0.post1"},
		{"2.0.0.dev3", "2.0.0.dev3"},
		{"1.2.3+cpu", "1.2.3"},
		{"2!1.0", "2!1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got := v.Public(); got != tt.public {
				t.Errorf("Public() = %q, want %q", got, tt.public)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1.x.2", "1.0+"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestPrereleaseAndDevFlags(t *testing.T) {
	tests := []struct {
		in    string
		pre   bool
		dev   bool
		local string
	}{
		{"1.0.0", false, false, ""},
		{"1.0.0rc1", true, false, ""},
		{"1.0.0.dev1", false, true, ""},
		{"1.0.0a1.dev2", true, true, ""},
		{"1.2.3+cu118", false, false, "cu118"},
	}

	for _, tt := range tests {
		v, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if v.IsPrerelease() != tt.pre {
			t.Errorf("%s: IsPrerelease() = %v, want %v", tt.in, v.IsPrerelease(), tt.pre)
		}
		if v.IsDevRelease() != tt.dev {
			t.Errorf("%s: IsDevRelease() = %v, want %v", tt.in, v.IsDevRelease(), tt.dev)
		}
		if v.Local != tt.local {
			t.Errorf("%s: Local = %q, want %q", tt.in, v.Local, tt.local)
		}
	}
}

func TestMajorMinor(t *testing.T) {
	v, err := Parse("2.32.3")
	if err != nil {
		t.Fatal(err)
	}
	if v.Major() != 2 || v.Minor() != 32 {
		t.Errorf("got %d.%d, want 2.32", v.Major(), v.Minor())
	}

	v, err = Parse("3")
	if err != nil {
		t.Fatal(err)
	}
	if v.Major() != 3 || v.Minor() != 0 {
		t.Errorf("got %d.%d, want 3.0", v.Major(), v.Minor())
	}
}

func TestCompare(t *testing.T) {
	// Ascending order per standard release ordering.
	ordered := []string{
		"0.9",
		"1.0.dev1",
		"1.0a1",
		"1.0b2",
		"1.0rc1",
		"1.0",
		"1.0.post1",
		"1.0.1",
		"2!0.1",
	}

	for i := 0; i < len(ordered)-1; i++ {
		a, err := Parse(ordered[i])
		if err != nil {
			t.Fatal(err)
		}
		b, err := Parse(ordered[i+1])
		if err != nil {
			t.Fatal(err)
		}
		if Compare(a, b) != -1 {
			t.Errorf("expected %s < %s", ordered[i], ordered[i+1])
		}
		if Compare(b, a) != 1 {
			t.Errorf("expected %s > %s", ordered[i+1], ordered[i])
		}
	}

	a, _ := Parse("1.2.3")
	b, _ := Parse("1.2.3")
	if Compare(a, b) != 0 {
		t.Error("expected 1.2.3 == 1.2.3")
	}
}
