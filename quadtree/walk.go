package quadtree

// DebugInfo summarizes the shape of a tree.
type DebugInfo struct {
	NodeCount         int `json:"node_count"`
	LeafCount         int `json:"leaf_count"`
	Depth             int `json:"depth"`
	PointCount        int `json:"point_count"`
	OverflowLeafCount int `json:"overflow_leaf_count"`
}

// NodeInfo is a read-only description of a node, enough to draw it.
type NodeInfo struct {
	Depth      int      `json:"depth"`
	Center     Vector3f `json:"center"`
	Size       Vector3f `json:"size"`
	Subdivided bool     `json:"subdivided"`
	Count      int      `json:"count"`
}

func (n *Node) Info() NodeInfo {
	return NodeInfo{
		Depth:      n.depth,
		Center:     n.region.Center(),
		Size:       n.region.Size(),
		Subdivided: n.Subdivided(),
		Count:      len(n.bucket),
	}
}

// Walk visits the nodes depth first, parents before children and children
// in NW, NE, SW, SE order. Returning false from fn skips the node's children.
func (t *Tree) Walk(fn func(*Node) bool) {
	walk(t.root, fn)
}

func walk(n *Node, fn func(*Node) bool) {
	if !fn(n) || n.children == nil {
		return
	}
	for _, c := range n.children {
		walk(c, fn)
	}
}

// Nodes returns the description of every node in Walk order.
func (t *Tree) Nodes() []NodeInfo {
	var nodes []NodeInfo
	t.Walk(func(n *Node) bool {
		nodes = append(nodes, n.Info())
		return true
	})
	return nodes
}

func (t *Tree) DebugInfo() DebugInfo {
	var info DebugInfo

	t.Walk(func(n *Node) bool {
		info.NodeCount++
		if n.depth > info.Depth {
			info.Depth = n.depth
		}
		if n.children != nil {
			return true
		}

		info.LeafCount++
		info.PointCount += len(n.bucket)
		if len(n.bucket) > n.capacity {
			info.OverflowLeafCount++
		}
		return true
	})

	return info
}
