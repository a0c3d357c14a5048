package report

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL predicate over a reported function. Available variables:
// module, name, call_count, total_time_ms, self_time_ms, avg_time_ms,
// projected_time_ms, percentage, cpu_percent, peak_memory_mb.
type Filter struct {
	expr string
	prg  cel.Program
}

// NewFilter compiles expr. The expression must evaluate to a bool.
func NewFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("module", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("call_count", cel.IntType),
		cel.Variable("total_time_ms", cel.DoubleType),
		cel.Variable("self_time_ms", cel.DoubleType),
		cel.Variable("avg_time_ms", cel.DoubleType),
		cel.Variable("projected_time_ms", cel.DoubleType),
		cel.Variable("percentage", cel.DoubleType),
		cel.Variable("cpu_percent", cel.DoubleType),
		cel.Variable("peak_memory_mb", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match evaluates the filter for fn.
func (f *Filter) Match(fn Function) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{
		"module":            fn.Identity.Module,
		"name":              fn.Identity.Name,
		"call_count":        fn.CallCount,
		"total_time_ms":     fn.TotalTimeMs,
		"self_time_ms":      fn.SelfTimeMs,
		"avg_time_ms":       fn.AvgTimeMs,
		"projected_time_ms": fn.ProjectedTimeMs,
		"percentage":        fn.Percentage,
		"cpu_percent":       fn.CPUPercent,
		"peak_memory_mb":    fn.PeakMemoryMB,
	})
	if err != nil {
		return false, fmt.Errorf("filter %q failed for %s: %w", f.expr, fn.Key, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T", f.expr, out.Value())
	}
	return b, nil
}
