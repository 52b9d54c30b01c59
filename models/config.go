package models

import (
	"context"

	"github.com/aukilabs/quadfield/messages"
	"github.com/aukilabs/quadfield/quadtree"
)

// FieldConfig describes how a field and its quadtree are created.
type FieldConfig struct {
	Center         quadtree.Vector3f
	Size           quadtree.Vector3f
	Capacity       int
	MaxDepth       int
	BoundaryPolicy quadtree.BoundaryPolicy
	Persist        bool
}

// WithOverrides returns a copy of the config with the values set in m
// applied.
func (c FieldConfig) WithOverrides(m *messages.FieldConfig) (FieldConfig, error) {
	if m == nil {
		return c, nil
	}

	if m.Region != nil {
		c.Center = m.Region.Center
		c.Size = m.Region.Size
	}
	if m.Capacity != nil {
		c.Capacity = *m.Capacity
	}
	if m.MaxDepth != nil {
		c.MaxDepth = *m.MaxDepth
	}
	if m.BoundaryPolicy != "" {
		policy, err := quadtree.ParseBoundaryPolicy(m.BoundaryPolicy)
		if err != nil {
			return c, err
		}
		c.BoundaryPolicy = policy
	}
	return c, nil
}

func (c FieldConfig) Region() quadtree.Region {
	return quadtree.NewRegion(c.Center, c.Size)
}

// NewField creates a field with the given id.
func (c FieldConfig) NewField(id uint32) (*Field, error) {
	field, err := NewField(id, c.Region(), c.Capacity,
		quadtree.WithMaxDepth(c.MaxDepth),
		quadtree.WithBoundaryPolicy(c.BoundaryPolicy),
	)
	if err != nil {
		return nil, err
	}

	field.Persist = c.Persist
	return field, nil
}

// Create creates a field from the given config and adds it to the store.
func (s *FieldStore) Create(ctx context.Context, conf FieldConfig) (*Field, error) {
	id := s.NewID()

	field, err := conf.NewField(id)
	if err != nil {
		s.ids.Reuse(id)
		return nil, err
	}

	if err := s.Add(ctx, field); err != nil {
		s.ids.Reuse(id)
		return nil, err
	}
	return field, nil
}

// FieldToMessage describes the field as seen from the given store.
func (s *FieldStore) FieldToMessage(f *Field) messages.FieldInfo {
	region := f.Region()

	return messages.FieldInfo{
		FieldID:   s.GlobalFieldID(f.ID),
		FieldUUID: f.FieldUUID,
		Region: messages.Region{
			Center: region.Center(),
			Size:   region.Size(),
		},
		Capacity:         f.Capacity(),
		MaxDepth:         f.MaxDepth(),
		BoundaryPolicy:   f.BoundaryPolicy().String(),
		Persist:          f.Persist,
		EntityCount:      f.EntityCount(),
		ParticipantCount: f.ParticipantCount(),
		CreatedAt:        f.CreatedAt,
	}
}
