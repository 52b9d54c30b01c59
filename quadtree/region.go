package quadtree

// Quadrant identifies one of the four children of a subdivided node. X grows
// east and Y grows north.
type Quadrant int

const (
	NorthWest Quadrant = iota
	NorthEast
	SouthWest
	SouthEast
)

// Quadrants lists the quadrants in insertion and query order.
var Quadrants = [4]Quadrant{NorthWest, NorthEast, SouthWest, SouthEast}

func (q Quadrant) String() string {
	switch q {
	case NorthWest:
		return "nw"
	case NorthEast:
		return "ne"
	case SouthWest:
		return "sw"
	case SouthEast:
		return "se"
	default:
		return "unknown"
	}
}

// Region is an axis-aligned box. It is built from a center and a size but
// keeps its corners so that split children share edges exactly.
type Region struct {
	min Vector3f
	max Vector3f
}

// NewRegion returns the region centered on center that spans size.
func NewRegion(center Vector3f, size Vector3f) Region {
	extents := Mul(size, 0.5)
	return Region{
		min: Sub(center, extents),
		max: Add(center, extents),
	}
}

func (r Region) Min() Vector3f {
	return r.min
}

func (r Region) Max() Vector3f {
	return r.max
}

func (r Region) Center() Vector3f {
	return Mul(Add(r.min, r.max), 0.5)
}

func (r Region) Size() Vector3f {
	return Sub(r.max, r.min)
}

// Extents returns the half size.
func (r Region) Extents() Vector3f {
	return Mul(r.Size(), 0.5)
}

// Contains reports whether p lies inside the region, edges included.
func (r Region) Contains(p Vector3f) bool {
	return p.GreaterOrEqualThan(r.min) && p.LesserOrEqualThan(r.max)
}

// Split returns the four child regions in NW, NE, SW, SE order. Children
// have half the width and height and the full depth of r.
func (r Region) Split() [4]Region {
	mid := r.Center()

	var children [4]Region
	children[NorthWest] = Region{
		min: Vector3f{r.min.X, mid.Y, r.min.Z},
		max: Vector3f{mid.X, r.max.Y, r.max.Z},
	}
	children[NorthEast] = Region{
		min: Vector3f{mid.X, mid.Y, r.min.Z},
		max: r.max,
	}
	children[SouthWest] = Region{
		min: r.min,
		max: Vector3f{mid.X, mid.Y, r.max.Z},
	}
	children[SouthEast] = Region{
		min: Vector3f{mid.X, r.min.Y, r.min.Z},
		max: Vector3f{r.max.X, mid.Y, r.max.Z},
	}
	return children
}

func (r Region) String() string {
	return "{center:" + r.Center().String() + " size:" + r.Size().String() + "}"
}

func (r Region) validate() error {
	size := r.Size()

	if !r.min.IsFinite() || !r.max.IsFinite() {
		return newInvalidRegionError(r, "region must be finite")
	}
	if size.X <= 0 || size.Y <= 0 {
		return newInvalidRegionError(r, "region width and height must be positive")
	}
	if size.Z < 0 {
		return newInvalidRegionError(r, "region depth must not be negative")
	}
	return nil
}
