package models

import (
	"math/rand"
	"testing"

	"github.com/aukilabs/quadfield/messages"
	"github.com/aukilabs/quadfield/quadtree"
	"github.com/stretchr/testify/require"
)

func TestEntityToMessage(t *testing.T) {
	e := NewEntity(1, 2, quadtree.Vector3f{X: 3, Y: 4}, Color{R: 0.5, G: 0.25, B: 1})

	require.Equal(t, messages.Entity{
		ID:            1,
		ParticipantID: 2,
		Position:      quadtree.Vector3f{X: 3, Y: 4},
		Color:         messages.Color{R: 0.5, G: 0.25, B: 1},
	}, e.ToMessage())

	require.Equal(t, []messages.Entity{e.ToMessage()}, EntitiesToMessage([]*Entity{e}))
}

func TestRandomColor(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 100; i++ {
		c := RandomColor(rng)
		for _, v := range []float32{c.R, c.G, c.B} {
			require.GreaterOrEqual(t, v, float32(0))
			require.Less(t, v, float32(1))
		}
	}

	a := RandomColor(rand.New(rand.NewSource(7)))
	b := RandomColor(rand.New(rand.NewSource(7)))
	require.Equal(t, a, b)
}

func TestColorFromMessage(t *testing.T) {
	require.Equal(t, Color{R: 1, G: 0, B: 0.5}, ColorFromMessage(messages.Color{R: 3, G: -1, B: 0.5}))
}
