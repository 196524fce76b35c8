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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/loom/schema"
)

func TestCalcAssignAndEvaluate(t *testing.T) {
	ctx := context.Background()
	calc := NewCalc()

	outputs, errs, err := calc.Exec(ctx, "x = 1\ny = x * 2\ny")
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Len(t, outputs, 1)
	assert.Equal(t, schema.Integer(2), outputs[0])

	value, err := calc.Get(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, schema.Integer(2), value)

	_, err = calc.Get(ctx, "zz")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestCalcExpressions(t *testing.T) {
	cases := []struct {
		expr string
		want schema.Node
	}{
		{"1 + 2 * 3", schema.Integer(7)},
		{"(1 + 2) * 3", schema.Integer(9)},
		{"2 ^ 3 ^ 2", schema.Integer(512)},
		{"-4 + 1", schema.Integer(-3)},
		{"7 % 4", schema.Integer(3)},
		{"1 / 2", schema.Number(0.5)},
		{"sqrt(16)", schema.Integer(4)},
		{"min(3, 1, 2)", schema.Integer(1)},
		{"pow(2, 10)", schema.Integer(1024)},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			outputs, errs, err := NewCalc().Exec(context.Background(), tc.expr)
			require.NoError(t, err)
			require.Empty(t, errs)
			require.Len(t, outputs, 1)
			assert.Equal(t, tc.want, outputs[0])
		})
	}
}

func TestCalcErrors(t *testing.T) {
	cases := []struct {
		name      string
		code      string
		errorType string
	}{
		{"unknown variable", "y = x + 1", "RuntimeError"},
		{"division by zero", "1 / 0", "RuntimeError"},
		{"unbalanced parens", "(1 + 2", "SyntaxError"},
		{"trailing garbage", "1 + 2 )", "SyntaxError"},
		{"unknown function", "frob(1)", "RuntimeError"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, errs, err := NewCalc().Exec(context.Background(), tc.code)
			require.NoError(t, err)
			require.Len(t, errs, 1)
			assert.Equal(t, tc.errorType, errs[0].ErrorType)
			assert.NotEmpty(t, errs[0].ErrorMessage)
		})
	}
}

func TestCalcStopsAtFirstFailingLine(t *testing.T) {
	calc := NewCalc()
	_, errs, err := calc.Exec(context.Background(), "a = 1\nb = nope\nc = 3")
	require.NoError(t, err)
	require.Len(t, errs, 1)

	_, err = calc.Get(context.Background(), "a")
	assert.NoError(t, err)
	_, err = calc.Get(context.Background(), "c")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestCalcSetCoercesNumerics(t *testing.T) {
	ctx := context.Background()
	calc := NewCalc()

	require.NoError(t, calc.Set(ctx, "n", schema.Integer(5)))
	require.NoError(t, calc.Set(ctx, "f", schema.Number(2.5)))
	assert.Error(t, calc.Set(ctx, "s", schema.String("nope")))

	outputs, errs, err := calc.Exec(ctx, "n * f")
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Len(t, outputs, 1)
	assert.Equal(t, schema.Number(12.5), outputs[0])
}

func TestCalcComparisonLineIsNotAssignment(t *testing.T) {
	calc := NewCalc()
	require.NoError(t, calc.Set(context.Background(), "x", schema.Integer(1)))

	// "x == 1" must not assign; it is a syntax error in calc.
	_, errs, err := calc.Exec(context.Background(), "x == 1")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "SyntaxError", errs[0].ErrorType)
}

func TestSpaceRoutesByLanguage(t *testing.T) {
	ctx := context.Background()
	space := NewSpace(nil)

	outputs, errs, err := space.Exec(ctx, "calc", "x = 21\nx * 2")
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Len(t, outputs, 1)
	assert.Equal(t, schema.Integer(42), outputs[0])

	_, _, err = space.Exec(ctx, "cobol", "MOVE 1 TO X")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)

	assert.Equal(t, []string{"calc"}, space.Languages())
}

func TestSpaceGetAndSet(t *testing.T) {
	ctx := context.Background()
	space := NewSpace(nil)

	require.NoError(t, space.Set(ctx, "calc", "height", schema.Integer(3)))

	value, err := space.Get(ctx, "calc", "height")
	require.NoError(t, err)
	assert.Equal(t, schema.Integer(3), value)

	_, err = space.Get(ctx, "calc", "width")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestSpaceRestartDropsVariables(t *testing.T) {
	ctx := context.Background()
	space := NewSpace(nil)

	_, _, err := space.Exec(ctx, "calc", "x = 1")
	require.NoError(t, err)

	space.Restart()

	_, err = space.Get(ctx, "calc", "x")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	assert.Empty(t, space.Languages())
}
