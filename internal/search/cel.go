package search

import (
	"fmt"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"github.com/orchestrix-io/orchestrix/internal/model"
	"sync"
	"time"
)

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

// expressionEnv declares the row variables an expression may use
func expressionEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("name", cel.StringType),
			cel.Variable("namespace", cel.StringType),
			cel.Variable("status", cel.StringType),
			cel.Variable("kind", cel.StringType),
			cel.Variable("labels", cel.MapType(cel.StringType, cel.StringType)),
			cel.Variable("age", cel.IntType),
			cel.HomogeneousAggregateLiterals(),
			cel.DefaultUTCTimeZone(true),
		)
	})
	return env, envErr
}

type expressionFilter struct {
	query   string
	program cel.Program
	now     func() time.Time
}

func compileExpression(expression, query string, now func() time.Time) (Filter, error) {
	if expression == "" {
		return nil, kerrors.New(kerrors.CodeInvalidRequest, "expression cannot be empty")
	}
	e, err := expressionEnv()
	if err != nil {
		return nil, kerrors.Wrap(kerrors.CodeInternal, "failed to create expression environment", err)
	}

	ast, issues := e.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, kerrors.Wrap(kerrors.CodeInvalidRequest, "invalid expression", issues.Err())
	}
	checked, issues := e.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, kerrors.Wrap(kerrors.CodeInvalidRequest, "invalid expression", issues.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return nil, kerrors.New(kerrors.CodeInvalidRequest, fmt.Sprintf("expression must evaluate to bool, not %s", checked.OutputType()))
	}
	program, err := e.Program(checked)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.CodeInvalidRequest, "invalid expression", err)
	}
	if now == nil {
		now = time.Now
	}
	return expressionFilter{query: query, program: program, now: now}, nil
}

func (f expressionFilter) Query() string { return f.query }

// Match treats evaluation errors, e.g. a missing label key, as no match
func (f expressionFilter) Match(row model.Row) bool {
	labels := row.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	var age int64
	if !row.Created.IsZero() {
		age = int64(f.now().Sub(row.Created) / time.Second)
	}
	out, _, err := f.program.Eval(map[string]any{
		"name":      row.Name,
		"namespace": row.Namespace,
		"status":    row.Status,
		"kind":      row.Kind,
		"labels":    labels,
		"age":       age,
	})
	if err != nil {
		dev.Debug("expression evaluation failed", "query", f.query, "row", row.Name, "err", err.Error())
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}
