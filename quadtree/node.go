package quadtree

// InsertResult describes what happened to an inserted position.
type InsertResult int

const (
	// Ignored means the position was outside the region and was dropped.
	Ignored InsertResult = iota

	// Inserted means the position was stored within capacity.
	Inserted

	// Overflowed means the position was stored in a leaf at the maximum
	// depth that was already full.
	Overflowed
)

func (r InsertResult) String() string {
	switch r {
	case Ignored:
		return "ignored"
	case Inserted:
		return "inserted"
	case Overflowed:
		return "overflowed"
	default:
		return "unknown"
	}
}

// Node is a region of a quadtree. A node is a leaf holding a bucket of
// positions until it subdivides, then an internal node owning exactly four
// children and no bucket.
type Node struct {
	region   Region
	capacity int
	depth    int

	bucket   []Vector3f
	children *[4]*Node
}

func newNode(region Region, capacity int, depth int) *Node {
	return &Node{
		region:   region,
		capacity: capacity,
		depth:    depth,
		bucket:   make([]Vector3f, 0, capacity),
	}
}

func (n *Node) Region() Region {
	return n.region
}

func (n *Node) Capacity() int {
	return n.capacity
}

// Depth returns the number of subdivisions above the node. The root is at
// depth 0.
func (n *Node) Depth() int {
	return n.depth
}

// Len returns the number of positions in the node's bucket. It is always 0
// for a subdivided node.
func (n *Node) Len() int {
	return len(n.bucket)
}

func (n *Node) Subdivided() bool {
	return n.children != nil
}

// Child returns the child covering the given quadrant, or nil when the node
// is a leaf.
func (n *Node) Child(q Quadrant) *Node {
	if n.children == nil || q < NorthWest || q > SouthEast {
		return nil
	}
	return n.children[q]
}

// Children returns the four children in NW, NE, SW, SE order, or nil when
// the node is a leaf.
func (n *Node) Children() []*Node {
	if n.children == nil {
		return nil
	}
	children := make([]*Node, 4)
	copy(children, n.children[:])
	return children
}

func (n *Node) insert(p Vector3f, o *options) InsertResult {
	if !n.region.Contains(p) {
		return Ignored
	}

	if n.children == nil {
		if len(n.bucket) < n.capacity {
			n.bucket = append(n.bucket, p)
			return Inserted
		}

		if n.depth >= o.maxDepth {
			n.bucket = append(n.bucket, p)
			return Overflowed
		}

		n.subdivide(o)
	}

	return n.insertIntoChildren(p, o)
}

func (n *Node) insertIntoChildren(p Vector3f, o *options) InsertResult {
	if o.boundary == BoundaryExclusive {
		for _, c := range n.children {
			if c.region.Contains(p) {
				return c.insert(p, o)
			}
		}
		return Ignored
	}

	res := Ignored
	for _, c := range n.children {
		if r := c.insert(p, o); r > res {
			res = r
		}
	}
	return res
}

// subdivide turns the leaf into an internal node. The bucket is moved down
// into the children, each of which receives at most capacity positions.
func (n *Node) subdivide(o *options) {
	regions := n.region.Split()

	var children [4]*Node
	for i, r := range regions {
		children[i] = newNode(r, n.capacity, n.depth+1)
	}

	bucket := n.bucket
	n.bucket = nil
	n.children = &children

	for _, p := range bucket {
		n.insertIntoChildren(p, o)
	}

	instrumentSubdivision(n.depth)
}

func (n *Node) nearby(origin Vector3f, o *options, dst []Vector3f) []Vector3f {
	if !n.region.Contains(origin) {
		return dst
	}

	if n.children == nil {
		return append(dst, n.bucket...)
	}

	for _, c := range n.children {
		if !c.region.Contains(origin) {
			continue
		}

		dst = c.nearby(origin, o, dst)
		if o.boundary == BoundaryExclusive {
			break
		}
	}
	return dst
}
