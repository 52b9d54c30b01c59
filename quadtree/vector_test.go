package quadtree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVector3f(t *testing.T) {
	a := NewVector3f(1, 2, 3)
	b := Vector3f{0.5, -1, 2}

	require.True(t, Add(a, b).Equal(Vector3f{1.5, 1, 5}))
	require.True(t, Sub(a, b).Equal(Vector3f{0.5, 3, 1}))
	require.True(t, Mul(a, 2).Equal(Vector3f{2, 4, 6}))

	require.True(t, a.GreaterOrEqualThan(b))
	require.False(t, b.GreaterOrEqualThan(a))
	require.True(t, b.LesserOrEqualThan(a))
	require.True(t, a.LesserOrEqualThan(a))

	require.True(t, a.EqualWithEpsilon(Vector3f{1.0001, 2, 3}, 0.001))
	require.False(t, a.EqualWithEpsilon(Vector3f{1.1, 2, 3}, 0.001))

	require.Equal(t, "[1,2,3]", a.String())
	require.Equal(t, "[0.5,-1,2]", b.String())
}

func TestVector3fIsFinite(t *testing.T) {
	require.True(t, Vector3f{1, 2, 3}.IsFinite())
	require.False(t, Vector3f{float32(math.NaN()), 0, 0}.IsFinite())
	require.False(t, Vector3f{0, float32(math.Inf(-1)), 0}.IsFinite())
	require.False(t, Vector3f{0, 0, float32(math.Inf(1))}.IsFinite())
}
