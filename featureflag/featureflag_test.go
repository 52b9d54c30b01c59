package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{string(FlagDisableFieldState)})

	t.Run("run if set", func(t *testing.T) {
		var runFieldState bool
		f.IfSet(FlagDisableFieldState, func() {
			runFieldState = true
		})
		require.True(t, runFieldState)

		var runSpawn bool
		f.IfSet(FlagDisableEntitySpawnBroadcast, func() {
			runSpawn = true
		})
		require.False(t, runSpawn)
	})

	t.Run("run if not set", func(t *testing.T) {
		var runFieldState bool
		f.IfNotSet(FlagDisableFieldState, func() {
			runFieldState = true
		})
		require.False(t, runFieldState)

		var runSpawn bool
		f.IfNotSet(FlagDisableEntitySpawnBroadcast, func() {
			runSpawn = true
		})
		require.True(t, runSpawn)
	})
}

func TestNewNormalizesFlags(t *testing.T) {
	f := New([]string{" disable_tree_signature", "", "DISABLE_FIELD_STATE "})

	require.True(t, f.IsSet(FlagDisableTreeSignature))
	require.True(t, f.IsSet(FlagDisableFieldState))
	require.Equal(t, []string{"DISABLE_FIELD_STATE", "DISABLE_TREE_SIGNATURE"}, f.List())
}

func TestNilFeatureFlag(t *testing.T) {
	var f FeatureFlag

	var run bool
	f.IfNotSet(FlagDisableFieldState, func() {
		run = true
	})
	require.True(t, run)
	require.Empty(t, f.List())
}
