package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"triage/pkg/models"
)

// Evaluator compiles and runs boolean rules over a message record. Rules see
// sender (name, address), platform, subject, body, owner and received_at.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("sender", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("platform", cel.StringType),
		cel.Variable("subject", cel.StringType),
		cel.Variable("body", cel.StringType),
		cel.Variable("owner", cel.StringType),
		cel.Variable("received_at", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// CompileRule checks that expression yields a bool and returns a program
// ready for repeated evaluation.
func (e *Evaluator) CompileRule(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) EvaluateRule(ctx context.Context, program cel.Program, msg models.MessageRecord) (bool, error) {
	result, _, err := program.ContextEval(ctx, messageVars(msg))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// Evaluate compiles and runs expression once.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, msg models.MessageRecord) (bool, error) {
	program, err := e.CompileRule(expression)
	if err != nil {
		return false, err
	}
	return e.EvaluateRule(ctx, program, msg)
}

func messageVars(msg models.MessageRecord) map[string]interface{} {
	return map[string]interface{}{
		"sender": map[string]string{
			"name":    msg.Sender.Name,
			"address": msg.Sender.Address,
		},
		"platform":    string(msg.Platform),
		"subject":     msg.Subject,
		"body":        msg.Body,
		"owner":       msg.OwnerID,
		"received_at": msg.ReceivedAt,
	}
}
