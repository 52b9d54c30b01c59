package models

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// A sequential id generator.
type SequentialIDGenerator struct {
	mutex       sync.Mutex
	currentID   uint32
	reusableIDs *roaring.Bitmap
}

// New returns a sequental id. The lowest reusable id is returned first.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.reusableIDs != nil && !g.reusableIDs.IsEmpty() {
		id := g.reusableIDs.Minimum()
		g.reusableIDs.Remove(id)
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable. Reusable ids are returned in priority
// when using New. Ids that were never generated are ignored.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.currentID {
		return
	}

	if g.reusableIDs == nil {
		g.reusableIDs = roaring.New()
	}
	g.reusableIDs.Add(id)
}
