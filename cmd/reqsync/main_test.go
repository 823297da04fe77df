package main

import (
	"os"
	"path/filepath"
	"testing"

	"reqsync/internal/config"
	"reqsync/internal/history"
	"reqsync/internal/policy"
)

func setFlag(t *testing.T, name, value string) {
	t.Helper()
	flag := runCmd.Flags().Lookup(name)
	if flag == nil {
		t.Fatalf("unknown flag %q", name)
	}
	if err := flag.Value.Set(value); err != nil {
		t.Fatal(err)
	}
	flag.Changed = true
	t.Cleanup(func() {
		flag.Value.Set(flag.DefValue)
		flag.Changed = false
	})
}

func TestBuildOptionsFlagOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	configYAML := "policy: floor-only\nexclude:\n  - pydantic\nlock_timeout: 45s\n"
	if err := os.WriteFile(filepath.Join(dir, "reqsync.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}

	setFlag(t, "policy", "update-in-place")

	opts, cfg, err := buildOptions(runCmd, []string{filepath.Join(dir, "requirements.txt")})
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil {
		t.Fatal("config should be discovered")
	}

	// Flag wins over config, config wins over defaults.
	if opts.Policy != policy.UpdateInPlace {
		t.Errorf("policy = %q", opts.Policy)
	}
	if len(opts.Exclude) != 1 || opts.Exclude[0] != "pydantic" {
		t.Errorf("exclude = %v", opts.Exclude)
	}
	if opts.LockTimeout.Seconds() != 45 {
		t.Errorf("lock timeout = %v", opts.LockTimeout)
	}
}

func TestBuildOptionsDefaults(t *testing.T) {
	opts, _, err := buildOptions(runCmd, []string{filepath.Join(t.TempDir(), "requirements.txt")})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Policy != policy.LowerBound {
		t.Errorf("policy = %q", opts.Policy)
	}
	if !opts.FollowIncludes || !opts.AllowDirty {
		t.Error("defaults not applied")
	}
}

func TestBuildOptionsRejectsUnknownPolicy(t *testing.T) {
	setFlag(t, "policy", "newest")
	if _, _, err := buildOptions(runCmd, []string{filepath.Join(t.TempDir(), "r.txt")}); err == nil {
		t.Error("expected error")
	}
}

func TestCapFromFlags(t *testing.T) {
	flagCap = "next-major"
	flagCapPackages = []string{"Django=next-minor"}
	t.Cleanup(func() {
		flagCap = ""
		flagCapPackages = nil
	})

	strategy, err := capFromFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if strategy.Default != policy.CapNextMajor {
		t.Errorf("default = %q", strategy.Default)
	}
	if strategy.ForPackage("django") != policy.CapNextMinor {
		t.Error("per-package key should be normalized")
	}
}

func TestCapFromFlagsRejectsBadSpecs(t *testing.T) {
	flagCapPackages = []string{"django"}
	t.Cleanup(func() { flagCapPackages = nil })
	if _, err := capFromFlags(nil); err == nil {
		t.Error("missing =rule should fail")
	}

	flagCapPackages = []string{"django=next-patch"}
	if _, err := capFromFlags(nil); err == nil {
		t.Error("unknown rule should fail")
	}
}

func TestPathArg(t *testing.T) {
	if got := pathArg(nil); got != "requirements.txt" {
		t.Errorf("default = %q", got)
	}
	if got := pathArg([]string{"dev.txt"}); got != "dev.txt" {
		t.Errorf("explicit = %q", got)
	}
}

func TestHistorySettings(t *testing.T) {
	root := "/project/requirements.txt"

	if got := historyPath(root, nil); got != history.DefaultPath(root) {
		t.Errorf("default path = %q", got)
	}

	cfg := &config.Config{History: &config.HistoryConfig{Path: "/var/lib/reqsync.db"}}
	if got := historyPath(root, cfg); got != "/var/lib/reqsync.db" {
		t.Errorf("config path = %q", got)
	}

	flagHistoryDB = "/tmp/override.db"
	t.Cleanup(func() { flagHistoryDB = "" })
	if got := historyPath(root, cfg); got != "/tmp/override.db" {
		t.Errorf("flag path = %q", got)
	}

	if !historyEnabled(nil) {
		t.Error("history defaults to enabled")
	}
	disabled := false
	if historyEnabled(&config.Config{History: &config.HistoryConfig{Enabled: &disabled}}) {
		t.Error("config can disable history")
	}
	flagNoHistory = true
	t.Cleanup(func() { flagNoHistory = false })
	if historyEnabled(nil) {
		t.Error("--no-history wins")
	}
}
