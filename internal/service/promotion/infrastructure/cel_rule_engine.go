// internal/service/promotion/infrastructure/cel_rule_engine.go
package infrastructure

import (
	"context"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// CelRuleEngine 用 CEL 求值用券规则。
// 规则表达式来自券模板，可用变量：orderAmount（订单金额）、memberNo、quantity。
// 编译结果按表达式缓存，同一模板的规则只编译一次。
type CelRuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewCelRuleEngine() (*CelRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("orderAmount", cel.DoubleType),
		cel.Variable("memberNo", cel.StringType),
		cel.Variable("quantity", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	return &CelRuleEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

func (e *CelRuleEngine) compile(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile rule %q", expr)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build program for rule %q", expr)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

func (e *CelRuleEngine) Evaluate(_ context.Context, expr string, vars map[string]interface{}) (bool, error) {
	if expr == "" {
		return true, nil
	}
	prg, err := e.compile(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, errors.Wrapf(err, "evaluate rule %q", expr)
	}
	pass, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("rule %q did not evaluate to bool", expr)
	}
	return pass, nil
}
