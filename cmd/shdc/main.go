// Command shdc compiles the shader variant table with an external shader
// compiler. Run with no arguments it performs the stock sweep:
//
//	tmp/shdc -V tmp/shd/Model.vert -o bin/Model.vert.bin -DINSTANCE_N=1 -DJOINT_N=64
//	...
//	tmp/shdc -V tmp/shd/Model.frag -o bin/Model.frag.bin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gviegas/yf-x/internal/config"
	"github.com/gviegas/yf-x/internal/shdc"
	"github.com/gviegas/yf-x/internal/watch"
	"github.com/gviegas/yf-x/kit/colorlog"
	"github.com/gviegas/yf-x/kit/executil"
	"github.com/gviegas/yf-x/kit/fsutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	configPath string
	envPath    string
	only       string
	dryRun     bool
	strict     bool
	legacy     bool
	watch      bool
	verbose    bool
	quiet      bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	var f flags
	fs := flag.NewFlagSet("shdc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "JSON `file` overriding paths and the variant table")
	fs.StringVar(&f.envPath, "env", ".env", "dotenv `file` consulted for SHDC_* overrides")
	fs.StringVar(&f.only, "only", "", "compile only variants whose <output><stage> matches `glob`")
	fs.BoolVar(&f.dryRun, "n", false, "print compiler invocations without running them")
	fs.BoolVar(&f.strict, "strict", false, "stop at the first failed compile")
	fs.BoolVar(&f.legacy, "legacy", false, "ignore compiler exit status")
	fs.BoolVar(&f.watch, "watch", false, "rerun the sweep when shader sources change")
	fs.BoolVar(&f.verbose, "v", false, "log progress and every compiler command line")
	fs.BoolVar(&f.quiet, "q", false, "log errors only")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %q", fs.Args())
	}
	if f.strict && f.legacy {
		return nil, errors.New("-strict and -legacy are mutually exclusive")
	}
	if f.verbose && f.quiet {
		return nil, errors.New("-v and -q are mutually exclusive")
	}
	return &f, nil
}

func (f *flags) policy() shdc.Policy {
	switch {
	case f.strict:
		return shdc.PolicyAbort
	case f.legacy:
		return shdc.PolicyIgnore
	default:
		return shdc.PolicyReport
	}
}

// level keeps the tool silent on success unless -v is given.
func (f *flags) level() slog.Level {
	switch {
	case f.verbose:
		return slog.LevelDebug
	case f.quiet:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "shdc:", err)
		return 2
	}

	log := colorlog.New("shdc", colorlog.Options{Output: stderr, Level: f.level()})

	cfg, err := config.Load(f.configPath, f.envPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		return 1
	}

	table := cfg.Table()
	if f.only != "" {
		if table, err = table.Filter(f.only); err != nil {
			log.Error("bad -only pattern", "error", err)
			return 1
		}
		if table.Len() == 0 {
			log.Warn("no variants match", "pattern", f.only)
		}
	}

	if cfg.DstDir != "" && !f.dryRun {
		if cfg.EnsureDstDir {
			if err := fsutil.EnsureDir(cfg.DstDir); err != nil {
				log.Error("failed to create destination directory", "error", err)
				return 1
			}
		} else if ok, err := fsutil.Exists(cfg.DstDir); err == nil && !ok {
			log.Warn("destination directory does not exist", "dir", cfg.DstDir)
		}
	}

	var runner shdc.Runner = executil.Runner{Stdout: stdout, Stderr: stderr}
	if f.dryRun {
		runner = executil.DryRunner{Out: stdout}
	}

	iv := shdc.New(shdc.Options{
		Paths:  cfg.Paths(),
		Table:  table,
		Runner: runner,
		Policy: f.policy(),
		Logger: log,
	})

	err = sweep(ctx, iv, log)
	if !f.watch {
		if err != nil {
			return 1
		}
		return 0
	}
	if errors.Is(err, shdc.ErrCompilerNotFound) {
		return 1
	}

	srcDir := cfg.SrcDir
	if srcDir == "" {
		srcDir = "."
	}
	var ignore []string
	if cfg.DstDir != "" {
		ignore = append(ignore, cfg.DstDir)
	}
	w, err := watch.New(watch.Options{
		Dir:        srcDir,
		Pattern:    watch.SourcePattern(cfg.Lang),
		IgnoreDirs: ignore,
		Logger:     log,
		OnChange: func(ctx context.Context, changed []string) error {
			log.Info("sources changed, rebuilding", "files", len(changed))
			if err := sweep(ctx, iv, log); errors.Is(err, shdc.ErrCompilerNotFound) {
				return err
			}
			return nil
		},
	})
	if err != nil {
		log.Error("failed to start watcher", "error", err)
		return 1
	}
	if err := w.Run(ctx); err != nil {
		log.Error("watcher stopped", "error", err)
		return 1
	}
	return 0
}

// sweep runs the invoker once and logs the outcome.
func sweep(ctx context.Context, iv *shdc.Invoker, log *slog.Logger) error {
	rep, err := iv.Run(ctx)
	switch {
	case err == nil:
		if failed := len(rep.Failed()); failed > 0 {
			log.Warn("sweep finished with ignored failures", "compiled", len(rep.Results), "failed", failed)
		} else {
			log.Info("sweep finished", "compiled", len(rep.Results))
		}
	case ctx.Err() != nil:
		log.Warn("sweep interrupted", "compiled", len(rep.Results))
	default:
		log.Error("sweep failed", "error", err)
	}
	return err
}
