package quadtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTreeWalk(t *testing.T) {
	tree := newTestTree(t, Vector3f{}, Vector3f{4, 4, 0}, 1)
	tree.Construct([]Vector3f{{1.5, 1.5, 0}, {-1, -1, 0}, {0.5, 0.5, 0}})

	t.Run("preorder", func(t *testing.T) {
		var depths []int
		var centers []Vector3f
		tree.Walk(func(n *Node) bool {
			depths = append(depths, n.Depth())
			centers = append(centers, n.Region().Center())
			return true
		})

		require.Equal(t, []int{0, 1, 1, 2, 2, 2, 2, 1, 1}, depths)
		require.Equal(t, []Vector3f{
			{0, 0, 0},
			{-1, 1, 0},
			{1, 1, 0},
			{0.5, 1.5, 0},
			{1.5, 1.5, 0},
			{0.5, 0.5, 0},
			{1.5, 0.5, 0},
			{-1, -1, 0},
			{1, -1, 0},
		}, centers)
	})

	t.Run("skip children", func(t *testing.T) {
		count := 0
		tree.Walk(func(n *Node) bool {
			count++
			return n.Depth() == 0
		})
		require.Equal(t, 5, count)
	})

	t.Run("nodes", func(t *testing.T) {
		nodes := tree.Nodes()
		require.Len(t, nodes, 9)
		require.Equal(t, NodeInfo{
			Depth:      0,
			Center:     Vector3f{},
			Size:       Vector3f{4, 4, 0},
			Subdivided: true,
		}, nodes[0])
		require.Equal(t, NodeInfo{
			Depth:  1,
			Center: Vector3f{-1, -1, 0},
			Size:   Vector3f{2, 2, 0},
			Count:  1,
		}, nodes[7])
	})

	t.Run("debug info", func(t *testing.T) {
		require.Equal(t, DebugInfo{
			NodeCount:  9,
			LeafCount:  7,
			Depth:      2,
			PointCount: 3,
		}, tree.DebugInfo())
	})
}
