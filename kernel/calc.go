// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kernel

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/AleutianAI/loom/schema"
)

// Calc interprets the calc language: one statement per line, either
// "name = expression" or a bare expression whose value becomes an output.
// Expressions are arithmetic (+ - * / % ^), parentheses, numeric
// literals, variables and a few numeric functions.
type Calc struct {
	mu        sync.Mutex
	variables map[string]float64
}

// NewCalc returns a calc kernel with no variables.
func NewCalc() *Calc {
	return &Calc{variables: make(map[string]float64)}
}

// Language implements Kernel.
func (c *Calc) Language() string { return "calc" }

// Exec implements Kernel. Execution stops at the first failing line.
func (c *Calc) Exec(ctx context.Context, code string) ([]schema.Node, []*schema.CodeError, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var outputs []schema.Node
	for _, line := range strings.Split(code, "\n") {
		if err := ctx.Err(); err != nil {
			return outputs, nil, err
		}

		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		name, expr := splitAssignment(line)
		value, cerr := c.evaluate(expr)
		if cerr != nil {
			return outputs, []*schema.CodeError{cerr}, nil
		}
		if name != "" {
			c.variables[name] = value
		} else {
			outputs = append(outputs, numberNode(value))
		}
	}
	return outputs, nil, nil
}

// Get implements Kernel.
func (c *Calc) Get(_ context.Context, name string) (schema.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.variables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, name)
	}
	return numberNode(value), nil
}

// Set implements Kernel. Non-numeric nodes are rejected.
func (c *Calc) Set(_ context.Context, name string, value schema.Node) error {
	number, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("kernel: calc variables are numeric, got %s", schema.TypeName(value))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[name] = number
	return nil
}

func toFloat(node schema.Node) (float64, bool) {
	switch node := node.(type) {
	case schema.Integer:
		return float64(node), true
	case schema.Number:
		return float64(node), true
	case schema.Boolean:
		if node {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// numberNode renders whole values as integers, which keeps parameter
// round trips exact.
func numberNode(value float64) schema.Node {
	if value == math.Trunc(value) && math.Abs(value) < 1e15 {
		return schema.Integer(int64(value))
	}
	return schema.Number(value)
}

var calcFunctions = map[string]func(args []float64) (float64, error){
	"abs":   unary(math.Abs),
	"ceil":  unary(math.Ceil),
	"floor": unary(math.Floor),
	"round": unary(math.Round),
	"sqrt":  unary(math.Sqrt),
	"min":   variadic(math.Min),
	"max":   variadic(math.Max),
	"pow": func(args []float64) (float64, error) {
		if len(args) != 2 {
			return 0, fmt.Errorf("pow takes 2 arguments, got %d", len(args))
		}
		return math.Pow(args[0], args[1]), nil
	},
}

func unary(fn func(float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		return fn(args[0]), nil
	}
}

func variadic(fn func(float64, float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) == 0 {
			return 0, fmt.Errorf("expected at least 1 argument")
		}
		result := args[0]
		for _, arg := range args[1:] {
			result = fn(result, arg)
		}
		return result, nil
	}
}

// splitAssignment splits "name = expr" into its parts; a non-assignment
// line yields an empty name.
func splitAssignment(line string) (name, expr string) {
	i := strings.Index(line, "=")
	if i < 0 || (i+1 < len(line) && line[i+1] == '=') {
		return "", line
	}
	candidate := strings.TrimSpace(line[:i])
	if !isIdentifier(candidate) {
		return "", line
	}
	return candidate, line[i+1:]
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// evaluate parses and evaluates one expression. Callers hold mu.
func (c *Calc) evaluate(expr string) (float64, *schema.CodeError) {
	p := &calcEval{input: expr, variables: c.variables}
	value, err := p.expression()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, syntaxError(fmt.Sprintf("unexpected %q", p.input[p.pos:]))
	}
	return value, nil
}

type calcEval struct {
	input     string
	pos       int
	variables map[string]float64
}

func syntaxError(message string) *schema.CodeError {
	return &schema.CodeError{ErrorType: "SyntaxError", ErrorMessage: message}
}

func runtimeError(message string) *schema.CodeError {
	return &schema.CodeError{ErrorType: "RuntimeError", ErrorMessage: message}
}

func (p *calcEval) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *calcEval) peek() byte {
	if p.pos < len(p.input) {
		return p.input[p.pos]
	}
	return 0
}

// expression := term (("+" | "-") term)*
func (p *calcEval) expression() (float64, *schema.CodeError) {
	value, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			value += right
		case '-':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			value -= right
		default:
			return value, nil
		}
	}
}

// term := power (("*" | "/" | "%") power)*
func (p *calcEval) term() (float64, *schema.CodeError) {
	value, err := p.power()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.power()
			if err != nil {
				return 0, err
			}
			value *= right
		case '/':
			p.pos++
			right, err := p.power()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, runtimeError("division by zero")
			}
			value /= right
		case '%':
			p.pos++
			right, err := p.power()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, runtimeError("division by zero")
			}
			value = math.Mod(value, right)
		default:
			return value, nil
		}
	}
}

// power := unary ("^" power)?  (right associative)
func (p *calcEval) power() (float64, *schema.CodeError) {
	value, err := p.unary()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.peek() == '^' {
		p.pos++
		exponent, err := p.power()
		if err != nil {
			return 0, err
		}
		return math.Pow(value, exponent), nil
	}
	return value, nil
}

// unary := ("-" | "+")? atom
func (p *calcEval) unary() (float64, *schema.CodeError) {
	p.skipSpace()
	switch p.peek() {
	case '-':
		p.pos++
		value, err := p.unary()
		return -value, err
	case '+':
		p.pos++
		return p.unary()
	}
	return p.atom()
}

// atom := number | name | name "(" args ")" | "(" expression ")"
func (p *calcEval) atom() (float64, *schema.CodeError) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, syntaxError("unexpected end of expression")
	}

	ch := p.input[p.pos]
	switch {
	case ch == '(':
		p.pos++
		value, err := p.expression()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, syntaxError("expected )")
		}
		p.pos++
		return value, nil

	case ch >= '0' && ch <= '9' || ch == '.':
		start := p.pos
		for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
			p.pos++
		}
		value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
		if err != nil {
			return 0, syntaxError(fmt.Sprintf("bad number %q", p.input[start:p.pos]))
		}
		return value, nil

	case ch == '_' || unicode.IsLetter(rune(ch)):
		start := p.pos
		for p.pos < len(p.input) && (p.input[p.pos] == '_' ||
			unicode.IsLetter(rune(p.input[p.pos])) || unicode.IsDigit(rune(p.input[p.pos]))) {
			p.pos++
		}
		name := p.input[start:p.pos]

		p.skipSpace()
		if p.peek() == '(' {
			return p.call(name)
		}

		value, ok := p.variables[name]
		if !ok {
			return 0, runtimeError(fmt.Sprintf("unknown variable %q", name))
		}
		return value, nil
	}

	return 0, syntaxError(fmt.Sprintf("unexpected %q", string(ch)))
}

func (p *calcEval) call(name string) (float64, *schema.CodeError) {
	fn, ok := calcFunctions[name]
	if !ok {
		return 0, runtimeError(fmt.Sprintf("unknown function %q", name))
	}

	p.pos++ // consume "("
	var args []float64
	p.skipSpace()
	if p.peek() != ')' {
		for {
			value, err := p.expression()
			if err != nil {
				return 0, err
			}
			args = append(args, value)
			p.skipSpace()
			if p.peek() != ',' {
				break
			}
			p.pos++
		}
	}
	p.skipSpace()
	if p.peek() != ')' {
		return 0, syntaxError("expected )")
	}
	p.pos++

	result, err := fn(args)
	if err != nil {
		return 0, runtimeError(err.Error())
	}
	return result, nil
}
