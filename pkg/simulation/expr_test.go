package simulation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLake_Simulation_EvaluatesArithmetic(t *testing.T) {
	t.Parallel()
	e, err := Compile("1 + 2 * 3")
	require.NoError(t, err)
	v, err := e.Eval(Vars{})
	require.NoError(t, err)
	require.Equal(t, 7.0, v)
}

func TestLake_Simulation_EvaluatesVariablesAndFunctions(t *testing.T) {
	t.Parallel()
	e, err := Compile("min(t, 10) + max(c, l)")
	require.NoError(t, err)
	v, err := e.Eval(Vars{T: 3, C: 2, L: 5})
	require.NoError(t, err)
	require.Equal(t, 8.0, v)
}

func TestLake_Simulation_RespectsParenthesesAndUnaryMinus(t *testing.T) {
	t.Parallel()
	e, err := Compile("-(2 + 3) * 2")
	require.NoError(t, err)
	v, err := e.Eval(Vars{})
	require.NoError(t, err)
	require.Equal(t, -10.0, v)
}

func TestLake_Simulation_SinCosMod(t *testing.T) {
	t.Parallel()
	e, err := Compile("mod(10, 3)")
	require.NoError(t, err)
	v, err := e.Eval(Vars{})
	require.NoError(t, err)
	require.Equal(t, 1.0, v)

	e, err = Compile("sin(0) + cos(0)")
	require.NoError(t, err)
	v, err = e.Eval(Vars{})
	require.NoError(t, err)
	require.Equal(t, 1.0, v)
}

func TestLake_Simulation_RejectsUnknownIdentifier(t *testing.T) {
	t.Parallel()
	e, err := Compile("x + 1")
	require.NoError(t, err) // compiles fine, fails at eval: unbound variable
	_, err = e.Eval(Vars{})
	require.Error(t, err)
}

func TestLake_Simulation_RejectsMalformedExpression(t *testing.T) {
	t.Parallel()
	_, err := Compile("1 + * 2")
	require.Error(t, err)
}

func TestLake_Simulation_RejectsTrailingGarbage(t *testing.T) {
	t.Parallel()
	_, err := Compile("1 + 2 3")
	require.Error(t, err)
}

func TestLake_Simulation_DivisionByZero(t *testing.T) {
	t.Parallel()
	e, err := Compile("1 / 0")
	require.NoError(t, err)
	_, err = e.Eval(Vars{})
	require.Error(t, err)
}
