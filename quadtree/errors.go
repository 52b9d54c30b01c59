package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeInvalidRegion   = "quadtree_invalid_region"
	ErrTypeInvalidCapacity = "quadtree_invalid_capacity"
	ErrTypeInvalidMaxDepth = "quadtree_invalid_max_depth"
	ErrTypeInvalidBoundary = "quadtree_invalid_boundary_policy"
)

func newInvalidRegionError(r Region, msg string) error {
	return errors.New(msg).
		WithType(ErrTypeInvalidRegion).
		WithTag("center", r.Center().String()).
		WithTag("size", r.Size().String())
}

func validateCapacity(capacity int) error {
	if capacity < 1 || capacity > MaxCapacity {
		return errors.Newf("capacity must be between 1 and %d", MaxCapacity).
			WithType(ErrTypeInvalidCapacity).
			WithTag("capacity", capacity)
	}
	return nil
}
