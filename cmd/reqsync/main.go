// Package main provides the reqsync CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reqsync/internal/config"
	"reqsync/internal/core"
	"reqsync/internal/env"
	"reqsync/internal/history"
	"reqsync/internal/parse"
	"reqsync/internal/policy"
)

// Version is the current reqsync CLI version
var Version = "1.2.0"

var rootCmd = &cobra.Command{
	Use:     "reqsync",
	Short:   "Sync requirement files to installed package versions",
	Long: `reqsync rewrites pip requirement files so their version specifiers
match what is actually installed in the active environment. It follows
-r includes, scans -c constraints, and writes atomically with locks
and backups.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Update requirement specifiers from installed versions",
	Long: `Update requirement specifiers from installed versions.

The file defaults to requirements.txt. Included files (-r) are updated
too; constraint files (-c) are scanned but left untouched unless
--update-constraints is set.

Examples:
  reqsync run                          # sync requirements.txt in place
  reqsync run --dry-run --diff         # preview without writing
  reqsync run dev-requirements.txt --policy update-in-place
  reqsync run --only 'django*' --exclude pydantic`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Report drift without writing (exit 11 when out of sync)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

var historyCmd = &cobra.Command{
	Use:   "history [file]",
	Short: "Show recorded synchronization runs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

// Shared sync flags, set on both run and check.
var (
	flagPolicy            string
	flagAllowPrerelease   bool
	flagKeepLocal         bool
	flagCap               string
	flagCapPackages       []string
	flagOnly              []string
	flagExclude           []string
	flagNoFollow          bool
	flagUpdateConstraints bool
	flagLastWins          bool
	flagAllowHashes       bool
	flagAllowDirty        bool
	flagSystemOK          bool
	flagLockTimeout       time.Duration
	flagBackupSuffix      string
	flagNoTimestamps      bool
	flagBackupKeep        int
	flagConfigPath        string
	flagPython            string
	flagNoUpgrade         bool
	flagPipTimeout        time.Duration
	flagPipArgs           []string
	flagOutput            string
	flagJSONReport        string
	flagShowDiff          bool
	flagDryRun            bool
	flagNoHistory         bool
	flagHistoryDB         string
)

var (
	historyLimit    int
	historyShowDiff bool
)

func init() {
	for _, cmd := range []*cobra.Command{runCmd, checkCmd} {
		f := cmd.Flags()
		f.StringVar(&flagPolicy, "policy", "", "Rewrite policy: lower-bound, floor-only, floor-and-cap, update-in-place")
		f.BoolVar(&flagAllowPrerelease, "allow-prerelease", false, "Write pre-release and dev versions instead of skipping them")
		f.BoolVar(&flagKeepLocal, "keep-local", false, "Keep local version segments (+local) in written specifiers")
		f.StringVar(&flagCap, "cap", "", "Upper bound for floor-and-cap: next-minor or next-major")
		f.StringArrayVar(&flagCapPackages, "cap-package", nil, "Per-package cap override as name=rule (repeatable)")
		f.StringSliceVar(&flagOnly, "only", nil, "Only touch packages matching these globs")
		f.StringSliceVar(&flagExclude, "exclude", nil, "Never touch packages matching these globs")
		f.BoolVar(&flagNoFollow, "no-follow", false, "Do not update files referenced by -r includes")
		f.BoolVar(&flagUpdateConstraints, "update-constraints", false, "Also rewrite -c constraint files")
		f.BoolVar(&flagLastWins, "last-wins", false, "On duplicate packages update the last occurrence instead of all")
		f.BoolVar(&flagAllowHashes, "allow-hashes", false, "Process hash-pinned files, leaving the pinned lines alone")
		f.BoolVar(&flagSystemOK, "system-ok", false, "Allow running without an active virtualenv")
		f.StringVar(&flagConfigPath, "config", "", "Config file (default: reqsync.yaml next to the requirement file)")
		f.StringVar(&flagPython, "python", "", "Python interpreter to query pip through")
		f.StringVar(&flagOutput, "output", "human", "Output format: human, json, or both")
		f.StringVar(&flagJSONReport, "json-report", "", "Also write the JSON report to this path")
		f.BoolVar(&flagShowDiff, "diff", false, "Print a unified diff of the changes")
	}

	rf := runCmd.Flags()
	rf.BoolVar(&flagDryRun, "dry-run", false, "Plan and report without writing")
	rf.BoolVar(&flagAllowDirty, "allow-dirty", true, "Run even when the git working tree has uncommitted changes")
	rf.DurationVar(&flagLockTimeout, "lock-timeout", 15*time.Second, "How long to wait for a file lock")
	rf.StringVar(&flagBackupSuffix, "backup-suffix", ".bak", "Backup file suffix")
	rf.BoolVar(&flagNoTimestamps, "no-timestamp-backups", false, "Overwrite a single backup instead of keeping timestamped ones")
	rf.IntVar(&flagBackupKeep, "backup-keep", 5, "Timestamped backups to retain per file (0 = unlimited)")
	rf.BoolVar(&flagNoUpgrade, "no-upgrade", false, "Skip pip upgrade and rewrite from the current environment only")
	rf.DurationVar(&flagPipTimeout, "pip-timeout", 900*time.Second, "Timeout for the pip upgrade")
	rf.StringArrayVar(&flagPipArgs, "pip-arg", nil, "Extra argument forwarded to pip install (repeatable)")
	rf.BoolVar(&flagNoHistory, "no-history", false, "Do not record this run in the history journal")
	rf.StringVar(&flagHistoryDB, "history-db", "", "History journal location (default: .reqsync/history.db next to the file)")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show")
	historyCmd.Flags().BoolVar(&historyShowDiff, "diff", false, "Include each run's stored diff")
	historyCmd.Flags().StringVar(&flagHistoryDB, "history-db", "", "History journal location (default: .reqsync/history.db next to the file)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "reqsync: %v\n", err)
		os.Exit(int(core.CodeFor(err)))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	opts, cfg, err := buildOptions(cmd, args)
	if err != nil {
		return err
	}
	opts.DryRun = flagDryRun

	upgrade := !flagNoUpgrade
	if !cmd.Flags().Changed("no-upgrade") && cfg != nil && cfg.Pip != nil && cfg.Pip.Upgrade != nil {
		upgrade = *cfg.Pip.Upgrade
	}
	if opts.DryRun {
		upgrade = false
	}

	result, runErr := core.Sync(context.Background(), opts, buildDeps(opts, cfg, upgrade))
	if result != nil {
		if err := report(result, opts); err != nil {
			return err
		}
		if !opts.DryRun && result.Changed && historyEnabled(cfg) {
			recordHistory(opts, cfg, result, core.CodeFor(runErr))
		}
	}
	return runErr
}

func runCheck(cmd *cobra.Command, args []string) error {
	opts, cfg, err := buildOptions(cmd, args)
	if err != nil {
		return err
	}
	opts.Check = true

	result, runErr := core.Sync(context.Background(), opts, buildDeps(opts, cfg, false))
	if result != nil {
		if err := report(result, opts); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if result.Changed {
		files := 0
		for _, fr := range result.Files {
			if fr.ChangedText() {
				files++
			}
		}
		return &core.Error{
			Code:    core.ExitChangesWouldBeMade,
			Message: fmt.Sprintf("out of sync: %d change(s) across %d file(s)", len(result.Changes), files),
		}
	}
	fmt.Println("in sync")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(pathArg(args))
	if err != nil {
		return err
	}
	cfg, _, err := config.Discover(root)
	if err != nil {
		return err
	}

	db, err := history.Open(historyPath(root, cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("#%d  %s  %s  %d change(s) in %d file(s)  exit %d\n",
			run.ID, run.At.Format("2006-01-02 15:04:05"), run.Policy,
			run.ChangeCount, run.FileCount, run.ExitCode)
		if historyShowDiff && run.Diff != "" {
			fmt.Println(run.Diff)
		}
	}
	return nil
}

func historyEnabled(cfg *config.Config) bool {
	if flagNoHistory {
		return false
	}
	if cfg != nil && cfg.History != nil && cfg.History.Enabled != nil {
		return *cfg.History.Enabled
	}
	return true
}

func historyPath(root string, cfg *config.Config) string {
	if flagHistoryDB != "" {
		return flagHistoryDB
	}
	if cfg != nil && cfg.History != nil && cfg.History.Path != "" {
		return cfg.History.Path
	}
	return history.DefaultPath(root)
}

func pathArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "requirements.txt"
}

// buildOptions layers flags over the discovered config over defaults.
// The loaded config is returned too so pip and history settings can be
// consumed by the command.
func buildOptions(cmd *cobra.Command, args []string) (core.Options, *config.Config, error) {
	path := pathArg(args)
	opts := core.DefaultOptions(path)

	var cfg *config.Config
	var err error
	if flagConfigPath != "" {
		cfg, err = config.Load(flagConfigPath)
	} else {
		cfg, _, err = config.Discover(path)
	}
	if err != nil {
		return opts, nil, err
	}
	if err := cfg.Apply(&opts); err != nil {
		return opts, nil, err
	}

	f := cmd.Flags()
	if f.Changed("policy") {
		p := policy.Policy(flagPolicy)
		if !p.Valid() {
			return opts, nil, fmt.Errorf("unknown policy %q", flagPolicy)
		}
		opts.Policy = p
	}
	if f.Changed("allow-prerelease") {
		opts.AllowPrerelease = flagAllowPrerelease
	}
	if f.Changed("keep-local") {
		opts.KeepLocal = flagKeepLocal
	}
	if f.Changed("cap") || f.Changed("cap-package") {
		strategy, err := capFromFlags(opts.Cap)
		if err != nil {
			return opts, nil, err
		}
		opts.Cap = strategy
	}
	if f.Changed("only") {
		opts.Only = flagOnly
	}
	if f.Changed("exclude") {
		opts.Exclude = flagExclude
	}
	if f.Changed("no-follow") {
		opts.FollowIncludes = !flagNoFollow
	}
	if f.Changed("update-constraints") {
		opts.UpdateConstraints = flagUpdateConstraints
	}
	if f.Changed("last-wins") {
		opts.LastWins = flagLastWins
	}
	if f.Changed("allow-hashes") {
		opts.AllowHashes = flagAllowHashes
	}
	if f.Changed("allow-dirty") {
		opts.AllowDirty = flagAllowDirty
	}
	if f.Changed("system-ok") {
		opts.SystemOK = flagSystemOK
	}
	if f.Changed("lock-timeout") {
		opts.LockTimeout = flagLockTimeout
	}
	if f.Changed("backup-suffix") {
		opts.BackupSuffix = flagBackupSuffix
	}
	if f.Changed("no-timestamp-backups") {
		opts.TimestampedBackups = !flagNoTimestamps
	}
	if f.Changed("backup-keep") {
		opts.BackupKeepLast = flagBackupKeep
	}
	if flagShowDiff || flagOutput != "human" {
		opts.ShowDiff = true
	}

	switch flagOutput {
	case "human", "json", "both":
	default:
		return opts, nil, fmt.Errorf("unknown output format %q", flagOutput)
	}

	return opts, cfg, nil
}

// capFromFlags builds the cap strategy, starting from whatever the
// config set.
func capFromFlags(base *policy.CapStrategy) (*policy.CapStrategy, error) {
	strategy := &policy.CapStrategy{}
	if base != nil {
		strategy.Default = base.Default
		if len(base.PerPackage) > 0 {
			strategy.PerPackage = make(map[string]string, len(base.PerPackage))
			for k, v := range base.PerPackage {
				strategy.PerPackage[k] = v
			}
		}
	}

	if flagCap != "" {
		if flagCap != policy.CapNextMinor && flagCap != policy.CapNextMajor {
			return nil, fmt.Errorf("unknown cap strategy %q", flagCap)
		}
		strategy.Default = flagCap
	}

	for _, spec := range flagCapPackages {
		name, rule, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --cap-package %q, want name=rule", spec)
		}
		if rule != policy.CapNextMinor && rule != policy.CapNextMajor {
			return nil, fmt.Errorf("unknown cap strategy %q for %s", rule, name)
		}
		if strategy.PerPackage == nil {
			strategy.PerPackage = make(map[string]string)
		}
		strategy.PerPackage[parse.NormalizeName(name)] = rule
	}

	return strategy, nil
}

// buildDeps wires the concrete environment. Check and dry runs never
// upgrade, whatever the flags say.
func buildDeps(opts core.Options, cfg *config.Config, upgrade bool) core.Deps {
	python := flagPython
	pipArgs := flagPipArgs
	if cfg != nil && cfg.Pip != nil {
		if python == "" {
			python = cfg.Pip.Python
		}
		if len(pipArgs) == 0 {
			pipArgs = cfg.Pip.Args
		}
	}

	return core.Deps{
		Provider: &env.PipProvider{
			Python:         python,
			Upgrade:        upgrade,
			UpgradePath:    opts.Path,
			UpgradeTimeout: flagPipTimeout,
			PipArgs:        pipArgs,
		},
		VenvActive: env.VenvActive,
		RepoDirty:  env.RepoDirty,
	}
}

// report prints the run outcome in the selected format.
func report(result *core.Result, opts core.Options) error {
	if flagOutput == "human" || flagOutput == "both" {
		printHuman(result, opts)
	}

	if flagOutput == "json" || flagOutput == "both" {
		data, err := json.MarshalIndent(result.JSON(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}

	if flagJSONReport != "" {
		if _, err := core.WriteJSONReport(result.JSON(), flagJSONReport); err != nil {
			return err
		}
	}

	return nil
}

// previewLimit caps the per-package listing in human output.
const previewLimit = 8

func printHuman(result *core.Result, opts core.Options) {
	for i, c := range result.Changes {
		if i == previewLimit {
			fmt.Printf("  ... and %d more\n", len(result.Changes)-previewLimit)
			break
		}
		fmt.Printf("%s: %s -> %s (installed %s)\n",
			relPath(c.File),
			strings.TrimRight(c.OldLine, "\r\n"),
			strings.TrimRight(c.NewLine, "\r\n"),
			c.InstalledVersion)
	}

	for _, path := range result.HashRefused {
		fmt.Printf("refused (hash-pinned): %s\n", relPath(path))
	}

	if result.Diff != "" && flagShowDiff {
		fmt.Println(result.Diff)
	}

	if !result.Changed {
		fmt.Println("nothing to do")
		return
	}

	verb := "updated"
	if opts.DryRun || opts.Check {
		verb = "would update"
	}
	files := 0
	for _, fr := range result.Files {
		if fr.ChangedText() {
			files++
		}
	}
	fmt.Printf("%s %d package(s) in %d file(s)\n", verb, len(result.Changes), files)

	for _, backup := range result.BackupPaths {
		fmt.Printf("backup: %s\n", relPath(backup))
	}
}

func relPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// recordHistory appends the applied run to the journal; failures only
// warn.
func recordHistory(opts core.Options, cfg *config.Config, result *core.Result, code core.ExitCode) {
	root, err := filepath.Abs(opts.Path)
	if err != nil {
		return
	}

	db, err := history.Open(historyPath(root, cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: history journal unavailable: %v\n", err)
		return
	}
	defer db.Close()

	files := 0
	for _, fr := range result.Files {
		if fr.ChangedText() {
			files++
		}
	}

	if _, err := db.RecordRun(&history.Run{
		Root:        root,
		Policy:      string(opts.Policy),
		ChangeCount: len(result.Changes),
		FileCount:   files,
		ExitCode:    int(code),
		Diff:        result.Diff,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: recording run failed: %v\n", err)
	}
}
