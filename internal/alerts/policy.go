// Package alerts evaluates subscriber alert policies written in CEL.
package alerts

import (
	"fmt"
	"sync"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// maxCompiled bounds the compiled program cache.
const maxCompiled = 1024

// Engine compiles and evaluates alert policies against finished analyses.
//
// A policy sees these variables:
//
//	overall_risk      int
//	severity          string  SAFE, AT_RISK or DRAINED
//	detection_types   list(string)
//	transaction_count int
//	wallet            string
//	partial           bool
//	lookup_failures   int
//	warnings          list(string)
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]cel.Program
}

// NewEngine creates a policy engine.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("overall_risk", cel.IntType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("detection_types", cel.ListType(cel.StringType)),
		cel.Variable("transaction_count", cel.IntType),
		cel.Variable("wallet", cel.StringType),
		cel.Variable("partial", cel.BoolType),
		cel.Variable("lookup_failures", cel.IntType),
		cel.Variable("warnings", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]cel.Program),
	}, nil
}

// Validate compiles a policy without caching it. Policies must yield a bool.
func (e *Engine) Validate(policy string) error {
	_, err := e.compile(policy)
	return err
}

// Evaluate reports whether analysis satisfies policy. Analyses without a
// report (failed runs) never match.
func (e *Engine) Evaluate(policy string, analysis *domain.Analysis) (bool, error) {
	if analysis == nil || analysis.Report == nil {
		return false, nil
	}

	prg, err := e.program(policy)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(Activation(analysis))
	if err != nil {
		return false, fmt.Errorf("policy evaluation error: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("policy must return bool, got %s", out.Type())
	}
	return bool(b), nil
}

// Activation builds the CEL variables for an analysis.
func Activation(a *domain.Analysis) map[string]any {
	warnings := a.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return map[string]any{
		"overall_risk":      int64(a.Report.OverallRisk),
		"severity":          string(a.Report.Severity),
		"detection_types":   a.Report.DetectionTypes(),
		"transaction_count": int64(a.Report.TransactionCount),
		"wallet":            a.Wallet,
		"partial":           a.Partial,
		"lookup_failures":   int64(a.LookupFailures),
		"warnings":          warnings,
	}
}

func (e *Engine) program(policy string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.compiled[policy]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	prg, err := e.compile(policy)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if len(e.compiled) >= maxCompiled {
		e.compiled = make(map[string]cel.Program)
	}
	e.compiled[policy] = prg
	e.mu.Unlock()

	return prg, nil
}

func (e *Engine) compile(policy string) (cel.Program, error) {
	if policy == "" {
		return nil, fmt.Errorf("policy expression is required")
	}

	ast, issues := e.env.Compile(policy)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy must return bool, got %s", ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy program: %w", err)
	}
	return prg, nil
}
