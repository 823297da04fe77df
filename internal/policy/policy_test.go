package policy

import (
	"testing"

	"reqsync/internal/parse"
)

func mustReq(t *testing.T, content string) *parse.Requirement {
	t.Helper()
	req, err := parse.ParseRequirement(content)
	if err != nil {
		t.Fatalf("ParseRequirement(%q): %v", content, err)
	}
	return req
}

func TestDecideTable(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		installed string
		policy    Policy
		opts      Options
		wantSpec  string
		changed   bool
		reason    string
	}{
		{
			name: "lower-bound raises floor", line: "requests>=2.30.0",
			installed: "2.32.3", policy: LowerBound,
			wantSpec: ">=2.32.3", changed: true,
		},
		{
			name: "lower-bound adds missing specifier", line: "requests",
			installed: "2.32.3", policy: LowerBound,
			wantSpec: ">=2.32.3", changed: true,
		},
		{
			name: "lower-bound keeps cap", line: "requests>=2.30.0,<3",
			installed: "2.32.3", policy: LowerBound,
			wantSpec: ">=2.32.3,<3", changed: true,
		},
		{
			name: "lower-bound keeps exclusion", line: "requests>=2.30.0,!=2.31.0",
			installed: "2.32.3", policy: LowerBound,
			wantSpec: ">=2.32.3,!=2.31.0", changed: true,
		},
		{
			name: "floor-only bare name is noop", line: "requests",
			installed: "2.32.3", policy: FloorOnly,
			wantSpec: "", changed: false, reason: ReasonNoFloor,
		},
		{
			name: "floor-only raises existing floor", line: "requests>=2.30.0",
			installed: "2.32.3", policy: FloorOnly,
			wantSpec: ">=2.32.3", changed: true,
		},
		{
			name: "floor-and-cap next minor", line: "requests>=2.30.0",
			installed: "2.32.3", policy: FloorAndCap,
			wantSpec: ">=2.32.3,<2.33.0", changed: true,
		},
		{
			name: "update-in-place pin", line: "requests==2.30.0",
			installed: "2.32.3", policy: UpdateInPlace,
			wantSpec: "==2.32.3", changed: true,
		},
		{
			name: "update-in-place bare name is noop", line: "requests",
			installed: "2.32.3", policy: UpdateInPlace,
			wantSpec: "", changed: false, reason: ReasonNoFloor,
		},
		{
			name: "update-in-place cap-only is noop", line: "requests<3",
			installed: "2.32.3", policy: UpdateInPlace,
			wantSpec: "", changed: false, reason: ReasonNoFloor,
		},
		{
			name: "update-in-place compatible release", line: "uvicorn~=0.29",
			installed: "0.30.1", policy: UpdateInPlace,
			wantSpec: "~=0.30.1", changed: true,
		},
		{
			name: "update-in-place keeps cap operator", line: "requests>=2.30.0,<3",
			installed: "2.32.3", policy: UpdateInPlace,
			wantSpec: ">=2.32.3,<3", changed: true,
		},
		{
			name: "prerelease skipped by default", line: "requests>=2.30.0",
			installed: "2.33.0rc1", policy: LowerBound,
			wantSpec: "", changed: false, reason: ReasonPrerelease,
		},
		{
			name: "prerelease adopted when allowed", line: "requests>=2.30.0",
			installed: "2.33.0rc1", policy: LowerBound,
			opts:     Options{AllowPrerelease: true},
			wantSpec: ">=2.33.0rc1", changed: true,
		},
		{
			name: "dev release skipped by default", line: "requests>=2.30.0",
			installed: "2.33.0.dev2", policy: LowerBound,
			wantSpec: "", changed: false, reason: ReasonPrerelease,
		},
		{
			name: "local segment dropped by default", line: "torch>=2.0.0",
			installed: "2.3.1+cu118", policy: LowerBound,
			wantSpec: ">=2.3.1", changed: true,
		},
		{
			name: "local segment kept on request", line: "torch>=2.0.0",
			installed: "2.3.1+cu118", policy: LowerBound,
			opts:     Options{KeepLocal: true},
			wantSpec: ">=2.3.1+cu118", changed: true,
		},
		{
			name: "already in sync is noop", line: "requests>=2.32.3",
			installed: "2.32.3", policy: LowerBound,
			wantSpec: "", changed: false, reason: ReasonUnchanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mustReq(t, tt.line)
			d, err := Decide(req, tt.installed, tt.policy, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if d.Changed != tt.changed {
				t.Errorf("Changed = %v, want %v", d.Changed, tt.changed)
			}
			if tt.changed && d.NewSpec != tt.wantSpec {
				t.Errorf("NewSpec = %q, want %q", d.NewSpec, tt.wantSpec)
			}
			if !tt.changed {
				if d.Reason != tt.reason {
					t.Errorf("Reason = %q, want %q", d.Reason, tt.reason)
				}
				if d.NewSpec != d.OldSpec {
					t.Errorf("no-op must keep spec: old %q new %q", d.OldSpec, d.NewSpec)
				}
			}
		})
	}
}

func TestFloorAndCapStrategies(t *testing.T) {
	req := mustReq(t, "requests>=2.30.0")

	d, err := Decide(req, "2.32.3", FloorAndCap, Options{
		Cap: &CapStrategy{Default: CapNextMajor},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.NewSpec != ">=2.32.3,<3.0.0" {
		t.Errorf("next-major cap = %q", d.NewSpec)
	}

	d, err = Decide(req, "2.32.3", FloorAndCap, Options{
		Cap: &CapStrategy{
			Default:    CapNextMajor,
			PerPackage: map[string]string{"requests": CapNextMinor},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.NewSpec != ">=2.32.3,<2.33.0" {
		t.Errorf("per-package next-minor cap = %q", d.NewSpec)
	}
}

func TestDecideInvalidInstalledVersion(t *testing.T) {
	req := mustReq(t, "requests>=2.30.0")
	if _, err := Decide(req, "not-a-version", LowerBound, Options{}); err == nil {
		t.Error("expected error for invalid installed version")
	}
}

func TestPolicyValid(t *testing.T) {
	for _, p := range []Policy{LowerBound, FloorOnly, FloorAndCap, UpdateInPlace} {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if Policy("newest").Valid() {
		t.Error("unknown policy should be invalid")
	}
}
