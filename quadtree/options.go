package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// MaxCapacity is the largest number of positions a node may hold before
	// it subdivides.
	MaxCapacity = 255

	// DefaultMaxDepth is the depth below which nodes stop subdividing when no
	// WithMaxDepth option is given. The root is at depth 0.
	DefaultMaxDepth = 16

	// MaxDepthLimit bounds the WithMaxDepth option.
	MaxDepthLimit = 64
)

// BoundaryPolicy decides which children receive a position that lies on an
// edge shared by several quadrants.
type BoundaryPolicy int

const (
	// BoundaryShared forwards insertions and queries to every child whose
	// region contains the position. A position on a shared edge is stored in
	// each of those children.
	BoundaryShared BoundaryPolicy = iota

	// BoundaryExclusive forwards insertions and queries to the first child,
	// in NW, NE, SW, SE order, whose region contains the position.
	BoundaryExclusive
)

func (p BoundaryPolicy) String() string {
	switch p {
	case BoundaryShared:
		return "shared"
	case BoundaryExclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// ParseBoundaryPolicy parses the String form of a policy.
func ParseBoundaryPolicy(v string) (BoundaryPolicy, error) {
	switch v {
	case "shared", "":
		return BoundaryShared, nil
	case "exclusive":
		return BoundaryExclusive, nil
	default:
		return BoundaryShared, errors.New("unknown boundary policy").
			WithType(ErrTypeInvalidBoundary).
			WithTag("policy", v)
	}
}

type options struct {
	maxDepth int
	boundary BoundaryPolicy
}

// Option configures a Tree.
type Option func(*options)

// WithMaxDepth sets the deepest level a node can be created at. A full leaf
// at that depth keeps accepting positions beyond its capacity.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// WithBoundaryPolicy sets how positions on shared edges are routed.
func WithBoundaryPolicy(p BoundaryPolicy) Option {
	return func(o *options) {
		o.boundary = p
	}
}

func newOptions(opts ...Option) (options, error) {
	o := options{
		maxDepth: DefaultMaxDepth,
		boundary: BoundaryShared,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.maxDepth < 0 || o.maxDepth > MaxDepthLimit {
		return o, errors.Newf("max depth must be between 0 and %d", MaxDepthLimit).
			WithType(ErrTypeInvalidMaxDepth).
			WithTag("max_depth", o.maxDepth)
	}
	if o.boundary != BoundaryShared && o.boundary != BoundaryExclusive {
		return o, errors.New("unknown boundary policy").
			WithType(ErrTypeInvalidBoundary).
			WithTag("policy", int(o.boundary))
	}
	return o, nil
}
