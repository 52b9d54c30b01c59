// Package quadtree implements a point quadtree.
//
// A Tree owns a root Node covering a fixed region. Positions are pushed down
// to the leaf whose region contains them; a leaf that exceeds its capacity
// subdivides into four quadrants. Nearby returns every position stored in the
// leaf (or leaves) containing the origin, which is a coarse neighbourhood and
// not a radius or k-nearest search.
//
// A Tree is not safe for concurrent use. Callers that share a Tree between
// goroutines must serialize insertions and must not query while inserting.
package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// BulkResult counts the outcome of a Construct call.
type BulkResult struct {
	Inserted   int `json:"inserted"`
	Ignored    int `json:"ignored"`
	Overflowed int `json:"overflowed"`
}

// Tree is a quadtree over a fixed region.
type Tree struct {
	root *Node
	opts options
}

// New creates an empty tree over region where each node holds up to capacity
// positions before subdividing.
func New(region Region, capacity int, opts ...Option) (*Tree, error) {
	if err := region.validate(); err != nil {
		return nil, err
	}
	if err := validateCapacity(capacity); err != nil {
		return nil, err
	}

	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}

	return &Tree{
		root: newNode(region, capacity, 0),
		opts: o,
	}, nil
}

// Construct inserts the given positions in order.
func (t *Tree) Construct(positions []Vector3f) BulkResult {
	var res BulkResult

	for _, p := range positions {
		switch t.root.insert(p, &t.opts) {
		case Inserted:
			res.Inserted++
		case Overflowed:
			res.Overflowed++
		default:
			res.Ignored++
		}
	}

	instrumentInsert(Inserted, res.Inserted)
	instrumentInsert(Ignored, res.Ignored)
	instrumentInsert(Overflowed, res.Overflowed)

	if res.Overflowed != 0 {
		logs.WithTag("overflowed", res.Overflowed).
			WithTag("max_depth", t.opts.maxDepth).
			Debug("positions stored beyond capacity at maximum depth")
	}
	return res
}

// Insert adds a position to the tree. Positions outside the tree region are
// dropped and reported as Ignored.
func (t *Tree) Insert(p Vector3f) InsertResult {
	res := t.root.insert(p, &t.opts)
	instrumentInsert(res, 1)

	if res == Overflowed {
		logs.WithTag("position", p.String()).
			WithTag("max_depth", t.opts.maxDepth).
			Debug("position stored beyond capacity at maximum depth")
	}
	return res
}

// Nearby returns the positions stored in the leaves whose region contains
// origin, in NW, NE, SW, SE order and insertion order within a leaf. It
// returns nil when origin is outside the tree region.
func (t *Tree) Nearby(origin Vector3f) []Vector3f {
	res := t.root.nearby(origin, &t.opts, nil)
	instrumentQuery(len(res))
	return res
}

func (t *Tree) Region() Region {
	return t.root.region
}

func (t *Tree) Capacity() int {
	return t.root.capacity
}

func (t *Tree) MaxDepth() int {
	return t.opts.maxDepth
}

func (t *Tree) BoundaryPolicy() BoundaryPolicy {
	return t.opts.boundary
}

// Root returns the root node for read-only traversal.
func (t *Tree) Root() *Node {
	return t.root
}
