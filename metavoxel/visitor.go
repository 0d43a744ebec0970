package metavoxel

import (
	"github.com/golang/geo/r3"

	"go.openvoxel.dev/engine/attribute"
	"go.openvoxel.dev/engine/spatial"
)

// Order is a visitor's verdict on the current cell.
type Order int

const (
	// StopRecursion accepts the visitor's output values as the cell's new
	// values and ends recursion below it.
	StopRecursion Order = iota
	// DefaultOrder subdivides the cell into its eight octants, visited in
	// the fixed octant order.
	DefaultOrder
)

// Visitor both queries and mutates the tree through Guide. It declares an
// ordered set of input attributes, gathered into each cell's InputValues, and
// an ordered set of output attributes it may write through OutputValues.
type Visitor interface {
	InputAttributes() []*attribute.Attribute
	OutputAttributes() []*attribute.Attribute
	Visit(info *Info) (Order, error)
}

// Info is the ephemeral traversal context for one visited cell. Parent links
// form a chain back to the root and are only valid for the duration of the
// traversal; they must never be stored past the Guide call.
type Info struct {
	// Minimum is the cell's minimum corner.
	Minimum r3.Vector
	// Size is the cell's edge length, a power-of-two fraction of the root.
	Size float64
	// Parent is a borrowed back-reference to the enclosing cell's info.
	Parent *Info
	// InputValues holds one value per visitor input attribute, defaulted
	// when the tree stores nothing for the cell.
	InputValues []attribute.Value
	// OutputValues holds one slot per visitor output attribute; slots left
	// untouched leave the tree unchanged.
	OutputValues []attribute.Value
	// IsLeaf reports that the cell cannot be subdivided further; a
	// DefaultOrder verdict on such a cell behaves like StopRecursion.
	IsLeaf bool

	inAttrs  []*attribute.Attribute
	outAttrs []*attribute.Attribute
}

// Bounds returns the cell's cube.
func (info *Info) Bounds() spatial.Box {
	return spatial.BoxFromCube(info.Minimum, info.Size)
}

// Center returns the cell's center point.
func (info *Info) Center() r3.Vector {
	half := info.Size * 0.5
	return info.Minimum.Add(r3.Vector{X: half, Y: half, Z: half})
}

// Ancestor walks up the given number of parent links, stopping early at the
// root.
func (info *Info) Ancestor(steps int) *Info {
	a := info
	for i := 0; i < steps && a.Parent != nil; i++ {
		a = a.Parent
	}
	return a
}

// InputValue returns the gathered value for the given input attribute.
func (info *Info) InputValue(attr *attribute.Attribute) (attribute.Value, bool) {
	for i, a := range info.inAttrs {
		if a == attr {
			return info.InputValues[i], true
		}
	}
	return attribute.Value{}, false
}

// SetOutput writes a payload for the given output attribute, replacing any
// previously written output for it.
func (info *Info) SetOutput(attr *attribute.Attribute, payload interface{}) bool {
	for i, a := range info.outAttrs {
		if a == attr {
			info.OutputValues[i] = attribute.NewValue(attr, payload)
			return true
		}
	}
	return false
}

// BlendOutput combines a payload into the current output for the given
// attribute under the attribute's blend rule. An untouched slot starts from
// the attribute default.
func (info *Info) BlendOutput(attr *attribute.Attribute, payload interface{}) bool {
	for i, a := range info.outAttrs {
		if a == attr {
			current := info.OutputValues[i]
			if current.Attribute() == nil {
				current = attribute.DefaultValue(attr)
			}
			info.OutputValues[i] = current.Blend(attribute.NewValue(attr, payload))
			return true
		}
	}
	return false
}

// guideSizeFloor bounds recursion for attributes configured with a zero
// placement granularity.
const guideSizeFloor = 1e-6

// Guide runs the visitor over the tree starting at the data's bounds. Cells
// whose outputs the visitor accepts are replaced along a cloned root-to-leaf
// path; untouched subtrees remain shared with prior snapshots.
func (d *MetavoxelData) Guide(visitor Visitor) error {
	g := &guidance{
		visitor: visitor,
		in:      visitor.InputAttributes(),
		out:     visitor.OutputAttributes(),
	}
	inNodes := make([]*node, len(g.in))
	inherited := make([]attribute.Value, len(g.in))
	for i, attr := range g.in {
		inNodes[i] = d.roots[attr]
		inherited[i] = attribute.DefaultValue(attr)
	}
	outNodes := make([]*node, len(g.out))
	for i, attr := range g.out {
		outNodes[i] = d.roots[attr]
	}

	results, changed, err := g.visit(nil, d.Bounds().Min, d.size, inNodes, outNodes, inherited)
	if err != nil {
		return err
	}
	for i, attr := range g.out {
		if !changed[i] {
			continue
		}
		root := results[i]
		if root.isLeaf() && root.value.IsDefault() {
			delete(d.roots, attr)
			continue
		}
		d.roots[attr] = root
	}
	return nil
}

type guidance struct {
	visitor Visitor
	in      []*attribute.Attribute
	out     []*attribute.Attribute
}

// canSubdivide reports whether half-size children would still respect every
// output attribute's placement granularity.
func (g *guidance) canSubdivide(size float64) bool {
	half := size * 0.5
	if half < guideSizeFloor {
		return false
	}
	for _, attr := range g.out {
		if granularity := attr.PlacementGranularity(); granularity > 0 && half < granularity {
			return false
		}
	}
	return true
}

func (g *guidance) visit(
	parent *Info,
	min r3.Vector,
	size float64,
	inNodes, outNodes []*node,
	inherited []attribute.Value,
) ([]*node, []bool, error) {
	inputs := make([]attribute.Value, len(g.in))
	for i := range g.in {
		if inNodes[i] != nil {
			inputs[i] = inNodes[i].value
		} else {
			inputs[i] = inherited[i]
		}
	}

	info := &Info{
		Minimum:      min,
		Size:         size,
		Parent:       parent,
		InputValues:  inputs,
		OutputValues: make([]attribute.Value, len(g.out)),
		IsLeaf:       !g.canSubdivide(size),
		inAttrs:      g.in,
		outAttrs:     g.out,
	}
	order, err := g.visitor.Visit(info)
	if err != nil {
		return nil, nil, err
	}

	if order == DefaultOrder && !info.IsLeaf {
		return g.subdivide(info, min, size, inNodes, outNodes, inputs)
	}

	// Accept whatever outputs the visitor produced for this cell.
	results := make([]*node, len(g.out))
	changed := make([]bool, len(g.out))
	for i := range g.out {
		value := info.OutputValues[i]
		if value.Attribute() == nil {
			results[i] = outNodes[i]
			continue
		}
		if existing := outNodes[i]; existing != nil && existing.isLeaf() && existing.value.Equal(value) {
			results[i] = existing
			continue
		}
		results[i] = newLeaf(value)
		changed[i] = true
	}
	return results, changed, nil
}

func (g *guidance) subdivide(
	info *Info,
	min r3.Vector,
	size float64,
	inNodes, outNodes []*node,
	inputs []attribute.Value,
) ([]*node, []bool, error) {
	half := size * 0.5
	childResults := make([][childCount]*node, len(g.out))
	childChanged := make([][childCount]bool, len(g.out))
	anyChanged := make([]bool, len(g.out))

	for index := 0; index < childCount; index++ {
		childMin := childMinimum(min, half, index)
		childIn := make([]*node, len(g.in))
		for i, n := range inNodes {
			childIn[i] = n.childAt(index)
		}
		childOut := make([]*node, len(g.out))
		for i, n := range outNodes {
			childOut[i] = n.childAt(index)
		}
		results, changed, err := g.visit(info, childMin, half, childIn, childOut, inputs)
		if err != nil {
			return nil, nil, err
		}
		for i := range g.out {
			childResults[i][index] = results[i]
			childChanged[i][index] = changed[i]
			if changed[i] {
				anyChanged[i] = true
			}
		}
	}

	results := make([]*node, len(g.out))
	for i, attr := range g.out {
		if !anyChanged[i] {
			results[i] = outNodes[i]
			continue
		}
		fallback := nodeValueOrDefault(outNodes[i], attr)
		var children [childCount]*node
		for index := 0; index < childCount; index++ {
			if childChanged[i][index] {
				children[index] = childResults[i][index]
				continue
			}
			if old := outNodes[i].childAt(index); old != nil {
				children[index] = old
				continue
			}
			// Subdividing a leaf (or an absent root) materializes the
			// untouched octants as leaves carrying the inherited value.
			children[index] = newLeaf(fallback)
		}
		results[i] = collapse(fallback, children)
	}
	return results, anyChanged, nil
}

func nodeValueOrDefault(n *node, attr *attribute.Attribute) attribute.Value {
	if n != nil {
		return n.value
	}
	return attribute.DefaultValue(attr)
}
