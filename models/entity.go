package models

import (
	"math/rand"

	"github.com/aukilabs/quadfield/messages"
	"github.com/aukilabs/quadfield/quadtree"
)

// Entity is a point placed in a field. Its position never changes once the
// entity is spawned.
type Entity struct {
	ID            uint32
	ParticipantID uint32
	Color         Color

	position quadtree.Vector3f
}

func NewEntity(id, participantID uint32, position quadtree.Vector3f, color Color) *Entity {
	return &Entity{
		ID:            id,
		ParticipantID: participantID,
		Color:         color,
		position:      position,
	}
}

func (e *Entity) Position() quadtree.Vector3f {
	return e.position
}

func (e *Entity) ToMessage() messages.Entity {
	return messages.Entity{
		ID:            e.ID,
		ParticipantID: e.ParticipantID,
		Position:      e.position,
		Color:         e.Color.ToMessage(),
	}
}

func EntitiesToMessage(entities []*Entity) []messages.Entity {
	res := make([]messages.Entity, len(entities))
	for i, e := range entities {
		res[i] = e.ToMessage()
	}
	return res
}

// Color is an RGB color with components between 0 and 1.
type Color struct {
	R float32
	G float32
	B float32
}

// RandomColor returns a color with uniformly distributed components.
func RandomColor(rng *rand.Rand) Color {
	return Color{
		R: rng.Float32(),
		G: rng.Float32(),
		B: rng.Float32(),
	}
}

func ColorFromMessage(c messages.Color) Color {
	return Color{
		R: clamp01(c.R),
		G: clamp01(c.G),
		B: clamp01(c.B),
	}
}

func (c Color) ToMessage() messages.Color {
	return messages.Color{
		R: c.R,
		G: c.G,
		B: c.B,
	}
}

func clamp01(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v >= 0:
		return v
	default:
		return 0
	}
}
