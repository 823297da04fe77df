// Package config loads reqsync.yaml project configuration and applies
// it to the engine's option bundle. Precedence is flags over config
// over defaults; applying a config only touches the fields it sets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"reqsync/internal/core"
	"reqsync/internal/parse"
	"reqsync/internal/policy"
)

// FileNames are the config files searched next to the root requirement
// file, first match wins.
var FileNames = []string{"reqsync.yaml", "reqsync.yml", ".reqsync.yaml"}

// CapConfig configures the floor-and-cap upper bound.
type CapConfig struct {
	Default    string            `yaml:"default"`
	PerPackage map[string]string `yaml:"per_package"`
}

// BackupConfig configures backup handling.
type BackupConfig struct {
	Suffix      *string `yaml:"suffix"`
	Timestamped *bool   `yaml:"timestamped"`
	KeepLast    *int    `yaml:"keep_last"`
}

// PipConfig configures the pip provider.
type PipConfig struct {
	Python  string   `yaml:"python"`
	Upgrade *bool    `yaml:"upgrade"`
	Args    []string `yaml:"args"`
}

// HistoryConfig configures the run journal.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the on-disk project configuration. Pointer fields
// distinguish "unset" from an explicit false or zero.
type Config struct {
	Policy            string   `yaml:"policy"`
	AllowPrerelease   *bool    `yaml:"allow_prerelease"`
	KeepLocal         *bool    `yaml:"keep_local"`
	Cap               *CapConfig `yaml:"cap"`
	Only              []string `yaml:"only"`
	Exclude           []string `yaml:"exclude"`
	FollowIncludes    *bool    `yaml:"follow_includes"`
	UpdateConstraints *bool    `yaml:"update_constraints"`
	LastWins          *bool    `yaml:"last_wins"`
	AllowHashes       *bool    `yaml:"allow_hashes"`
	AllowDirty        *bool    `yaml:"allow_dirty"`
	SystemOK          *bool    `yaml:"system_ok"`
	LockTimeout       string   `yaml:"lock_timeout"`
	Backup            *BackupConfig  `yaml:"backup"`
	Pip               *PipConfig     `yaml:"pip"`
	History           *HistoryConfig `yaml:"history"`
}

// Load reads and parses one config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Discover finds and loads the config file next to the root requirement
// file. Returns (nil, "", nil) when no config file exists.
func Discover(root string) (*Config, string, error) {
	dir := filepath.Dir(root)
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	return nil, "", nil
}

// Apply copies the set fields of the config onto opts.
func (c *Config) Apply(opts *core.Options) error {
	if c == nil {
		return nil
	}

	if c.Policy != "" {
		p := policy.Policy(c.Policy)
		if !p.Valid() {
			return fmt.Errorf("config: unknown policy %q", c.Policy)
		}
		opts.Policy = p
	}
	if c.AllowPrerelease != nil {
		opts.AllowPrerelease = *c.AllowPrerelease
	}
	if c.KeepLocal != nil {
		opts.KeepLocal = *c.KeepLocal
	}
	if c.Cap != nil {
		strategy, err := c.Cap.strategy()
		if err != nil {
			return err
		}
		opts.Cap = strategy
	}
	if len(c.Only) > 0 {
		opts.Only = append([]string{}, c.Only...)
	}
	if len(c.Exclude) > 0 {
		opts.Exclude = append([]string{}, c.Exclude...)
	}
	if c.FollowIncludes != nil {
		opts.FollowIncludes = *c.FollowIncludes
	}
	if c.UpdateConstraints != nil {
		opts.UpdateConstraints = *c.UpdateConstraints
	}
	if c.LastWins != nil {
		opts.LastWins = *c.LastWins
	}
	if c.AllowHashes != nil {
		opts.AllowHashes = *c.AllowHashes
	}
	if c.AllowDirty != nil {
		opts.AllowDirty = *c.AllowDirty
	}
	if c.SystemOK != nil {
		opts.SystemOK = *c.SystemOK
	}
	if c.LockTimeout != "" {
		d, err := time.ParseDuration(c.LockTimeout)
		if err != nil {
			return fmt.Errorf("config: invalid lock_timeout %q: %w", c.LockTimeout, err)
		}
		opts.LockTimeout = d
	}
	if c.Backup != nil {
		if c.Backup.Suffix != nil {
			opts.BackupSuffix = *c.Backup.Suffix
		}
		if c.Backup.Timestamped != nil {
			opts.TimestampedBackups = *c.Backup.Timestamped
		}
		if c.Backup.KeepLast != nil {
			opts.BackupKeepLast = *c.Backup.KeepLast
		}
	}
	return nil
}

// strategy converts the cap config, normalizing package name keys.
func (cc *CapConfig) strategy() (*policy.CapStrategy, error) {
	out := &policy.CapStrategy{Default: cc.Default}
	if err := validCapRule(cc.Default); err != nil {
		return nil, err
	}
	if len(cc.PerPackage) > 0 {
		out.PerPackage = make(map[string]string, len(cc.PerPackage))
		for name, rule := range cc.PerPackage {
			if err := validCapRule(rule); err != nil {
				return nil, fmt.Errorf("config: cap for %s: %w", name, err)
			}
			out.PerPackage[parse.NormalizeName(name)] = rule
		}
	}
	return out, nil
}

func validCapRule(rule string) error {
	switch rule {
	case "", policy.CapNextMinor, policy.CapNextMajor:
		return nil
	}
	return fmt.Errorf("unknown cap strategy %q", rule)
}
