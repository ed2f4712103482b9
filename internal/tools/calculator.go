package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
)

const calculatorCharset = "0123456789.+-*/() "

// Calculate evaluates a plain arithmetic expression. Only digits,
// decimal points, + - * / parentheses and spaces are accepted.
func Calculate(expression string) (float64, error) {
	for _, c := range expression {
		if !strings.ContainsRune(calculatorCharset, c) {
			return 0, fmt.Errorf("Invalid characters")
		}
	}
	if strings.TrimSpace(expression) == "" {
		return 0, fmt.Errorf("empty expression")
	}

	program, err := expr.Compile(expression)
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %w", err)
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return 0, err
	}

	var f float64
	switch v := out.(type) {
	case int:
		f = float64(v)
	case float64:
		f = v
	default:
		return 0, fmt.Errorf("expression did not produce a number")
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("division by zero")
	}
	return f, nil
}

func handleCalculator(_ context.Context, args map[string]any) (Result, error) {
	expression, _ := args["expression"].(string)
	v, err := Calculate(expression)
	if err != nil {
		return nil, err
	}
	return Result{"result": v}, nil
}
