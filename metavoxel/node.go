// Package metavoxel implements the attribute-indexed, persistent octree at
// the heart of the engine: octree nodes and data roots, the visitor protocol
// used to query and mutate them, spanners voxelized into the tree at adaptive
// resolution, and the closed set of edit commands.
package metavoxel

import (
	"github.com/golang/geo/r3"

	"go.openvoxel.dev/engine/attribute"
)

const childCount = 8

// node is one octree cell. Nodes are immutable once linked into a tree:
// every structural mutation clones the root-to-leaf path being changed, so
// older snapshots keep observing the pre-edit structure. A node is either a
// leaf carrying a value or an internal node with exactly eight children; an
// internal node's own value serves only as the default for un-subdivided
// queries.
type node struct {
	value    attribute.Value
	children *[childCount]*node
}

func newLeaf(value attribute.Value) *node {
	return &node{value: value}
}

func newInternal(value attribute.Value, children [childCount]*node) *node {
	for i := range children {
		if children[i] == nil {
			panic("metavoxel: internal node with partial child set")
		}
	}
	c := children
	return &node{value: value, children: &c}
}

func (n *node) isLeaf() bool {
	return n == nil || n.children == nil
}

func (n *node) childAt(index int) *node {
	if n == nil || n.children == nil {
		return nil
	}
	return n.children[index]
}

// count returns the number of nodes in the subtree, the node included.
func (n *node) count() int {
	if n == nil {
		return 0
	}
	if n.children == nil {
		return 1
	}
	total := 1
	for _, child := range n.children {
		total += child.count()
	}
	return total
}

// collapse folds eight equal-valued leaves back into a single leaf; any other
// child set becomes an internal node whose own value is the given fallback.
func collapse(fallback attribute.Value, children [childCount]*node) *node {
	first := children[0]
	if first != nil && first.isLeaf() {
		uniform := true
		for i := 1; i < childCount; i++ {
			c := children[i]
			if c == nil || !c.isLeaf() || !c.value.Equal(first.value) {
				uniform = false
				break
			}
		}
		if uniform {
			return newLeaf(first.value)
		}
	}
	return newInternal(fallback, children)
}

// Octant index encoding: bit 0 selects the +X half, bit 1 the +Y half and
// bit 2 the +Z half. Children are always visited in index order 0..7 so any
// operation relying on traversal order is reproducible.
func childMinimum(min r3.Vector, half float64, index int) r3.Vector {
	if index&1 != 0 {
		min.X += half
	}
	if index&2 != 0 {
		min.Y += half
	}
	if index&4 != 0 {
		min.Z += half
	}
	return min
}

// oppositeOctant returns the octant diagonally across the cell center; used
// when doubling the bounds, where old child i becomes the inner-corner
// grandchild of new child i.
func oppositeOctant(index int) int {
	return childCount - 1 - index
}

// octantForPoint returns the child octant containing the point and the
// octant's minimum corner.
func octantForPoint(min r3.Vector, half float64, p r3.Vector) (int, r3.Vector) {
	index := 0
	if p.X >= min.X+half {
		index |= 1
	}
	if p.Y >= min.Y+half {
		index |= 2
	}
	if p.Z >= min.Z+half {
		index |= 4
	}
	return index, childMinimum(min, half, index)
}
