package tracker

// DisjointSet is a union-find forest over dense integer ids.
//
// Find is iterative with path compression and Union links by size, so
// resolving any chain or cycle of links takes bounded time and never recurses.
type DisjointSet struct {
	parent []int
	size   []int
}

// NewDisjointSet returns a forest of n singleton sets.
func NewDisjointSet(n int) *DisjointSet {
	ds := &DisjointSet{}
	ds.Grow(n)
	return ds
}

// Len returns the number of elements.
func (ds *DisjointSet) Len() int {
	return len(ds.parent)
}

// Grow extends the forest to n elements. Existing elements are untouched.
func (ds *DisjointSet) Grow(n int) {
	for i := len(ds.parent); i < n; i++ {
		ds.parent = append(ds.parent, i)
		ds.size = append(ds.size, 1)
	}
}

// Find returns the canonical representative of x's set.
func (ds *DisjointSet) Find(x int) int {
	root := x
	for ds.parent[root] != root {
		root = ds.parent[root]
	}
	for ds.parent[x] != root {
		next := ds.parent[x]
		ds.parent[x] = root
		x = next
	}
	return root
}

// Union merges the sets of a and b and returns the new representative.
func (ds *DisjointSet) Union(a, b int) int {
	ra, rb := ds.Find(a), ds.Find(b)
	if ra == rb {
		return ra
	}
	if ds.size[ra] < ds.size[rb] {
		ra, rb = rb, ra
	}
	ds.parent[rb] = ra
	ds.size[ra] += ds.size[rb]
	return ra
}

// Connected reports whether a and b are in the same set.
func (ds *DisjointSet) Connected(a, b int) bool {
	return ds.Find(a) == ds.Find(b)
}
