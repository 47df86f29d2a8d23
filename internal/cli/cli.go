// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mwhite/zotrestore/internal/adapters/osfs"
	"github.com/mwhite/zotrestore/internal/catalog"
	"github.com/mwhite/zotrestore/internal/config"
	"github.com/mwhite/zotrestore/internal/dedupe"
	"github.com/mwhite/zotrestore/internal/restore"
)

// ConfigService provides configuration operations for the CLI.
type ConfigService interface {
	Load() (*config.Config, error)
	Save(cfg *config.Config) error
	ConfigPath() string
	DefaultConfig() *config.Config
}

// RestoreService provides restore operations for the CLI.
type RestoreService interface {
	Run(ctx context.Context, sourceDir, prefix, destDir string, opts restore.Options) (*restore.Report, error)
}

// CopyService provides dedupe-copy operations for the CLI.
type CopyService interface {
	Run(ctx context.Context, srcDir, destDir string, opts dedupe.Options) (*dedupe.Result, error)
}

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	In      io.Reader // Interactive input (prompts)
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Injectable dependencies (nil means use defaults)
	Logger     *zap.Logger
	ConfigSvc  ConfigService
	RestoreSvc RestoreService
	CopySvc    CopyService

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		Args:    os.Args,
		Exit:    os.Exit,
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(in io.Reader, out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	return &CLI{
		In:      in,
		Out:     out,
		Err:     errOut,
		Version: "test",
		Args:    args,
		Exit:    func(code int) {},
		Logger:  zap.NewNop(),
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// defaultConfigService wraps the config package functions.
type defaultConfigService struct{}

func (d *defaultConfigService) Load() (*config.Config, error) { return config.Load() }
func (d *defaultConfigService) Save(cfg *config.Config) error { return cfg.Save() }
func (d *defaultConfigService) ConfigPath() string            { return config.ConfigPath() }
func (d *defaultConfigService) DefaultConfig() *config.Config { return config.DefaultConfig() }

// Helper methods to get the service or default
func (c *CLI) configSvc() ConfigService {
	if c.ConfigSvc != nil {
		return c.ConfigSvc
	}
	return &defaultConfigService{}
}

func (c *CLI) restoreSvc(log *zap.Logger) RestoreService {
	if c.RestoreSvc != nil {
		return c.RestoreSvc
	}
	return restore.NewDefaultService(log)
}

func (c *CLI) copySvc(log *zap.Logger) CopyService {
	if c.CopySvc != nil {
		return c.CopySvc
	}
	return dedupe.NewDefaultService(log)
}

// logger returns the injected logger, or builds a console logger writing
// to stderr at debug level when verbose is set.
func (c *CLI) logger(verbose bool) *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(c.Err),
		level,
	)
	return zap.New(core)
}

// Run executes the CLI with the configured arguments.
func (c *CLI) Run() {
	if len(c.Args) < 2 {
		c.PrintUsage()
		c.Exit(1)
		return
	}

	switch c.Args[1] {
	case "restore":
		c.RunRestore()
	case "copy":
		c.RunCopy()
	case "init":
		c.InitConfig()
	case "version", "-v", "--version":
		fmt.Fprintf(c.Out, "zotrestore v%s\n", c.Version)
	case "help", "-h", "--help":
		c.PrintUsage()
	default:
		fmt.Fprintf(c.Err, "Unknown command: %s\n", c.Args[1])
		c.PrintUsage()
		c.Exit(1)
	}
}

// PrintUsage prints the help message.
func (c *CLI) PrintUsage() {
	fmt.Fprintln(c.Out, `zotrestore - Split ZIP Backup Restoration Tool

Usage:
  zotrestore restore <pattern> <output> [flags]
      Restore all parts matching <pattern><digits>.zip into <output>.
      The directory part of <pattern> is the source directory; the rest
      is the literal filename prefix.
        --dry-run, -n     Show what would be done without extracting
        --no-validate     Skip archive validation (faster but less safe)
        --overwrite, -f   Overwrite existing files
        --verbose, -v     Enable verbose output

  zotrestore copy <source> <output> [flags]
      Flatten-copy attachments into <output>, keeping only the newest of
      each " 2"/" 3"-suffixed duplicate.
        --ext=.pdf        File extension to copy (.* for all)
        --workers=3       Concurrent copies
        --verbose, -v     Enable verbose output

  zotrestore init                Create default config file
  zotrestore version, -v         Show version
  zotrestore help, -h            Show this help

Config: ~/.zotrestore/config.yaml`)
}

// InitConfig creates the default config file.
func (c *CLI) InitConfig() {
	svc := c.configSvc()
	if err := svc.Save(svc.DefaultConfig()); err != nil {
		fmt.Fprintf(c.Err, "Error saving config: %v\n", err)
		c.Exit(1)
		return
	}
	fmt.Fprintf(c.Out, "Created config at %s\n", svc.ConfigPath())
}

// RunRestore runs the restore command.
func (c *CLI) RunRestore() {
	cfg, err := c.configSvc().Load()
	if err != nil {
		fmt.Fprintf(c.Err, "Error loading config: %v\n", err)
		c.Exit(1)
		return
	}

	opts := restore.Options{
		Validate:  cfg.Validate,
		Overwrite: cfg.Overwrite,
	}
	verbose := cfg.Verbose

	var positionals []string
	for _, arg := range c.Args[2:] {
		switch {
		case arg == "--dry-run" || arg == "-n":
			opts.DryRun = true
		case arg == "--no-validate":
			opts.Validate = false
		case arg == "--overwrite" || arg == "-f":
			opts.Overwrite = true
		case arg == "--verbose" || arg == "-v":
			verbose = true
		case strings.HasPrefix(arg, "-"):
			fmt.Fprintf(c.Err, "Unknown flag: %s\n", arg)
			c.Exit(1)
			return
		default:
			positionals = append(positionals, arg)
		}
	}
	if len(positionals) != 2 {
		fmt.Fprintln(c.Out, "Usage: zotrestore restore <pattern> <output> [--dry-run] [--no-validate] [--overwrite] [--verbose]")
		c.Exit(1)
		return
	}

	sourceDir, prefix := splitPattern(positionals[0])
	destDir := config.ExpandPath(positionals[1])

	// Pre-flight plan: list the parts and check free space before the
	// engine starts writing.
	parts, err := catalog.Discover(osfs.New(), sourceDir, prefix)
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}
	if len(parts) == 0 {
		fmt.Fprintf(c.Err, "No matching ZIP files found for %s*.zip in %s\n", prefix, sourceDir)
		c.Exit(1)
		return
	}

	total := catalog.TotalSize(parts)
	fmt.Fprintf(c.Out, "%s Found %d part(s), %s total\n",
		c.cyan("=>"), len(parts), humanize.IBytes(uint64(total)))
	for _, p := range parts {
		fmt.Fprintf(c.Out, "  Part %03d: %s (%s bytes)\n",
			p.Seq, filepath.Base(p.Path), humanize.Comma(p.Size))
	}
	fmt.Fprintf(c.Out, "  %s\n", c.gray(fmt.Sprintf(
		"validate=%t overwrite=%t dry-run=%t", opts.Validate, opts.Overwrite, opts.DryRun)))

	if !opts.DryRun && !c.checkDiskSpace(destDir, total) {
		fmt.Fprintln(c.Out, "Aborted by user")
		c.Exit(1)
		return
	}

	opts.ConfirmGap = func(missing []int) bool {
		fmt.Fprintf(c.Out, "%s Missing parts: %v\n", c.yellow("!"), missing)
		return c.confirm("Continue anyway?")
	}

	log := c.logger(verbose)
	defer func() { _ = log.Sync() }()

	report, err := c.restoreSvc(log).Run(context.Background(), sourceDir, prefix, destDir, opts)
	switch {
	case errors.Is(err, restore.ErrAbortedByUser):
		fmt.Fprintln(c.Out, "Aborted by user")
		c.Exit(1)
		return
	case err != nil:
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}

	if report.PlanOnly {
		fmt.Fprintf(c.Out, "%s Dry run: would extract %d part(s) (%s) to %s\n",
			c.cyan("=>"), len(report.Parts), humanize.IBytes(uint64(report.TotalSize)), report.Destination)
		return
	}

	c.printRestoreReport(report)
	if !report.Success() {
		c.Exit(1)
	}
}

// printRestoreReport prints the per-member problems and the final tally.
func (c *CLI) printRestoreReport(report *restore.Report) {
	fmt.Fprintln(c.Out)
	for _, p := range report.Problems {
		fmt.Fprintf(c.Out, "  %s %s: %s\n", c.red("x"), p.Member, p.Reason)
	}

	fmt.Fprintf(c.Out, "Done: %s extracted, %s skipped",
		c.green(strconv.Itoa(report.Tally.Extracted)),
		c.gray(strconv.Itoa(report.Tally.Skipped)))
	if report.Tally.Errors > 0 {
		fmt.Fprintf(c.Out, ", %s errors", c.red(strconv.Itoa(report.Tally.Errors)))
	}
	fmt.Fprintln(c.Out)

	if report.Success() {
		fmt.Fprintf(c.Out, "%s All files extracted to %s\n", c.green("*"), report.Destination)
	}
}

// RunCopy runs the dedupe-copy command.
func (c *CLI) RunCopy() {
	cfg, err := c.configSvc().Load()
	if err != nil {
		fmt.Fprintf(c.Err, "Error loading config: %v\n", err)
		c.Exit(1)
		return
	}

	opts := dedupe.Options{
		Extension: cfg.Copy.Extension,
		Workers:   cfg.Copy.Workers,
	}
	verbose := cfg.Verbose

	var positionals []string
	for _, arg := range c.Args[2:] {
		switch {
		case strings.HasPrefix(arg, "--ext="):
			opts.Extension = strings.TrimPrefix(arg, "--ext=")
		case strings.HasPrefix(arg, "--workers="):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "--workers="))
			if err != nil || n < 1 {
				fmt.Fprintf(c.Err, "Invalid --workers value: %s\n", arg)
				c.Exit(1)
				return
			}
			opts.Workers = n
		case arg == "--verbose" || arg == "-v":
			verbose = true
		case strings.HasPrefix(arg, "-"):
			fmt.Fprintf(c.Err, "Unknown flag: %s\n", arg)
			c.Exit(1)
			return
		default:
			positionals = append(positionals, arg)
		}
	}
	if len(positionals) != 2 {
		fmt.Fprintln(c.Out, "Usage: zotrestore copy <source> <output> [--ext=.pdf] [--workers=3] [--verbose]")
		c.Exit(1)
		return
	}

	srcDir := config.ExpandPath(positionals[0])
	destDir := config.ExpandPath(positionals[1])

	log := c.logger(verbose)
	defer func() { _ = log.Sync() }()

	result, err := c.copySvc(log).Run(context.Background(), srcDir, destDir, opts)
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}

	fmt.Fprintln(c.Out)
	for _, s := range result.Skipped {
		fmt.Fprintf(c.Out, "  %s %s: %s\n", c.red("x"), s.Path, s.Reason)
	}
	fmt.Fprintf(c.Out, "Done: %s copied, %s duplicates skipped",
		c.green(strconv.Itoa(result.Copied)),
		c.gray(strconv.Itoa(result.Duplicates)))
	if result.Errors > 0 {
		fmt.Fprintf(c.Out, ", %s errors", c.red(strconv.Itoa(result.Errors)))
	}
	fmt.Fprintln(c.Out)

	if result.Errors > 0 {
		c.Exit(1)
	}
}

// confirm prints a y/N prompt and reads one line of input.
// Anything but an explicit yes is a no.
func (c *CLI) confirm(prompt string) bool {
	fmt.Fprintf(c.Out, "%s (y/N): ", prompt)
	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// checkDiskSpace warns and prompts when the destination filesystem looks
// too small. Uncompressed output typically runs 1-3x the compressed
// input, so 2x is the working estimate. Unknown free space never blocks.
func (c *CLI) checkDiskSpace(destDir string, totalCompressed int64) bool {
	free, ok := diskFree(destDir)
	if !ok {
		// Destination may not exist yet; probe its parent.
		free, ok = diskFree(filepath.Dir(destDir))
	}
	if !ok {
		return true
	}

	needed := uint64(totalCompressed) * 2
	if free >= needed {
		return true
	}

	fmt.Fprintf(c.Out, "%s Low disk space: %s free, about %s needed\n",
		c.yellow("!"), humanize.IBytes(free), humanize.IBytes(needed))
	return c.confirm("Continue anyway?")
}

// splitPattern separates the positional pattern into its source directory
// and literal filename prefix. A bare prefix means the current directory.
func splitPattern(pattern string) (dir, prefix string) {
	dir, prefix = filepath.Split(config.ExpandPath(pattern))
	if dir == "" {
		return ".", prefix
	}
	return filepath.Clean(dir), prefix
}
