// Package shdc drives an external shader compiler over a table of shader
// variants. Each variant becomes exactly one blocking compiler invocation:
//
//	<compiler> -V <input> -o <output> <extra flags...>
//
// Invocations run sequentially, vertex variants first. A compiler that cannot
// be started aborts the whole sweep; what happens on a non-zero exit is
// governed by Policy.
package shdc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gviegas/yf-x/kit/colorlog"
	"github.com/gviegas/yf-x/kit/executil"
)

var (
	ErrCompilerNotFound = errors.New("shader compiler could not be started")
	ErrInvalidVariant   = errors.New("invalid variant")
	ErrInvalidStage     = errors.New("invalid stage")
	ErrCompileFailed    = errors.New("shader compilation failed")
)

// Runner runs one process to completion. err is reserved for processes that
// could not be started; a non-zero exit is reported through exitCode.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (exitCode int, err error)
}

// Policy decides what a sweep does when the compiler exits non-zero.
type Policy int

const (
	// PolicyReport runs every variant and returns ErrCompileFailed at the end
	// if any of them failed.
	PolicyReport Policy = iota
	// PolicyAbort stops at the first failed variant.
	PolicyAbort
	// PolicyIgnore never surfaces compiler failures.
	PolicyIgnore
)

func (p Policy) String() string {
	switch p {
	case PolicyReport:
		return "report"
	case PolicyAbort:
		return "abort"
	case PolicyIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Result is the outcome of one compiler invocation.
type Result struct {
	Variant  Variant
	Stage    Stage
	Input    string
	Output   string
	Args     []string
	ExitCode int
}

func (r Result) Failed() bool { return r.ExitCode != 0 }

// Report collects the results of a sweep in invocation order.
type Report struct {
	Results []Result
}

func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}

type Options struct {
	Paths  Paths
	Table  Table
	Runner Runner       // default: executil.Runner with inherited streams
	Policy Policy       // default: PolicyReport
	Logger *slog.Logger // default: colorlog "shdc"
}

type Invoker struct {
	paths  Paths
	table  Table
	runner Runner
	policy Policy
	log    *slog.Logger
}

func New(opts Options) *Invoker {
	if opts.Runner == nil {
		opts.Runner = executil.Runner{}
	}
	if opts.Logger == nil {
		opts.Logger = colorlog.New("shdc")
	}
	return &Invoker{
		paths:  opts.Paths,
		table:  opts.Table.Clone(),
		runner: opts.Runner,
		policy: opts.Policy,
		log:    opts.Logger,
	}
}

func (iv *Invoker) Paths() Paths { return iv.paths }
func (iv *Invoker) Table() Table { return iv.table.Clone() }

// CompileStage runs the compiler once for v. A non-zero exit is not an error
// here; it is recorded in Result.ExitCode.
func (iv *Invoker) CompileStage(ctx context.Context, v Variant, s Stage) (Result, error) {
	if v.Source == "" {
		return Result{}, fmt.Errorf("%w: empty source name", ErrInvalidVariant)
	}
	if !s.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidStage, string(s))
	}

	res := Result{
		Variant: v,
		Stage:   s,
		Input:   iv.paths.Input(v, s),
		Output:  iv.paths.Output(v, s),
		Args:    iv.paths.Args(v, s),
	}
	iv.log.Debug("invoking compiler", "cmd", executil.Quote(append([]string{iv.paths.Compiler}, res.Args...)...))

	code, err := iv.runner.Run(ctx, iv.paths.Compiler, res.Args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("shdc: compile %s: %w", res.Output, ctxErr)
		}
		return res, fmt.Errorf("%w: %s: %w", ErrCompilerNotFound, iv.paths.Compiler, err)
	}
	res.ExitCode = code

	if res.Failed() {
		iv.log.Warn("compiler exited with error", "output", res.Output, "status", code)
	} else {
		iv.log.Info("compiled", "output", res.Output)
	}
	return res, nil
}

func (iv *Invoker) CompileAllVertex(ctx context.Context) ([]Result, error) {
	return iv.compileAll(ctx, iv.table.Vertex, StageVertex)
}

func (iv *Invoker) CompileAllFragment(ctx context.Context) ([]Result, error) {
	return iv.compileAll(ctx, iv.table.Fragment, StageFragment)
}

// Run performs the full sweep: every vertex variant, then every fragment
// variant. The returned Report holds every invocation that took place, even
// when an error is returned.
func (iv *Invoker) Run(ctx context.Context) (Report, error) {
	var rep Report

	vert, err := iv.CompileAllVertex(ctx)
	rep.Results = append(rep.Results, vert...)
	if err != nil {
		return rep, err
	}

	frag, err := iv.CompileAllFragment(ctx)
	rep.Results = append(rep.Results, frag...)
	if err != nil {
		return rep, err
	}

	failed := rep.Failed()
	if len(failed) == 0 || iv.policy == PolicyIgnore {
		return rep, nil
	}
	return rep, failedError(failed)
}

func (iv *Invoker) compileAll(ctx context.Context, vs []Variant, s Stage) ([]Result, error) {
	results := make([]Result, 0, len(vs))
	for _, v := range vs {
		res, err := iv.CompileStage(ctx, v, s)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if res.Failed() && iv.policy == PolicyAbort {
			return results, failedError([]Result{res})
		}
	}
	return results, nil
}

func failedError(failed []Result) error {
	names := make([]string, len(failed))
	for i, r := range failed {
		names[i] = fmt.Sprintf("%s (status %d)", r.Output, r.ExitCode)
	}
	return fmt.Errorf("%w: %s", ErrCompileFailed, strings.Join(names, ", "))
}
