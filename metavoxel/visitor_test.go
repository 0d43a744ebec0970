package metavoxel

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.openvoxel.dev/engine/attribute"
)

type funcVisitor struct {
	in  []*attribute.Attribute
	out []*attribute.Attribute
	fn  func(info *Info) (Order, error)
}

func (v *funcVisitor) InputAttributes() []*attribute.Attribute {
	return v.in
}

func (v *funcVisitor) OutputAttributes() []*attribute.Attribute {
	return v.out
}

func (v *funcVisitor) Visit(info *Info) (Order, error) {
	return v.fn(info)
}

type visitRecord struct {
	min    r3.Vector
	size   float64
	isLeaf bool
}

func TestGuideTraversalOrder(t *testing.T) {
	logger := golog.NewTestLogger(t)
	data, err := NewMetavoxelData(2, logger)
	test.That(t, err, test.ShouldBeNil)

	var visits []visitRecord
	err = data.Guide(&funcVisitor{fn: func(info *Info) (Order, error) {
		visits = append(visits, visitRecord{min: info.Minimum, size: info.Size, isLeaf: info.IsLeaf})
		if info.Size > 1 {
			return DefaultOrder, nil
		}
		return StopRecursion, nil
	}})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, len(visits), test.ShouldEqual, 9)
	test.That(t, visits[0].min, test.ShouldResemble, r3.Vector{X: -1, Y: -1, Z: -1})
	test.That(t, visits[0].size, test.ShouldEqual, 2)

	// Octant index bit 0 advances X, bit 1 advances Y, bit 2 advances Z.
	expected := []r3.Vector{
		{X: -1, Y: -1, Z: -1},
		{X: 0, Y: -1, Z: -1},
		{X: -1, Y: 0, Z: -1},
		{X: 0, Y: 0, Z: -1},
		{X: -1, Y: -1, Z: 0},
		{X: 0, Y: -1, Z: 0},
		{X: -1, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: 0},
	}
	for i, min := range expected {
		test.That(t, visits[i+1].min, test.ShouldResemble, min)
		test.That(t, visits[i+1].size, test.ShouldEqual, 1)
	}
}

func TestGuideParentChain(t *testing.T) {
	logger := golog.NewTestLogger(t)
	data, err := NewMetavoxelData(4, logger)
	test.That(t, err, test.ShouldBeNil)

	err = data.Guide(&funcVisitor{fn: func(info *Info) (Order, error) {
		if info.Size > 1 {
			return DefaultOrder, nil
		}
		if info.Parent == nil || info.Parent.Size != 2 {
			return StopRecursion, errors.New("missing or wrong-size parent")
		}
		if info.Ancestor(0) != info {
			return StopRecursion, errors.New("zero-step ancestor is not the cell itself")
		}
		if info.Ancestor(1) != info.Parent {
			return StopRecursion, errors.New("one-step ancestor is not the parent")
		}
		// Walking past the root clamps there.
		if root := info.Ancestor(10); root.Size != 4 || root.Parent != nil {
			return StopRecursion, errors.New("over-long ancestor walk did not stop at the root")
		}
		return StopRecursion, nil
	}})
	test.That(t, err, test.ShouldBeNil)
}

func TestGuideLeafAtGranularity(t *testing.T) {
	logger := golog.NewTestLogger(t)
	coarse, err := attribute.NewFloatAttribute("coarse", attribute.Config{
		LODThresholdMultiplier: 1,
		PlacementGranularity:   0.5,
	})
	test.That(t, err, test.ShouldBeNil)

	data, err := NewMetavoxelData(2, logger)
	test.That(t, err, test.ShouldBeNil)

	// Always ask to subdivide; the guide must stop where halving the cell
	// would drop below the output's placement granularity.
	var smallest float64 = 2
	var leafSeen bool
	err = data.Guide(&funcVisitor{
		out: []*attribute.Attribute{coarse},
		fn: func(info *Info) (Order, error) {
			if info.Size < smallest {
				smallest = info.Size
			}
			if info.IsLeaf {
				leafSeen = true
			}
			return DefaultOrder, nil
		},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, smallest, test.ShouldEqual, 0.5)
	test.That(t, leafSeen, test.ShouldBeTrue)
}

func TestGuideInputGathering(t *testing.T) {
	logger := golog.NewTestLogger(t)
	density := newDensityAttribute(t)

	data, err := NewMetavoxelData(2, logger)
	test.That(t, err, test.ShouldBeNil)
	err = GlobalSetEdit{Value: attribute.NewOwnedValue(density, 5.0)}.Apply(data, nil)
	test.That(t, err, test.ShouldBeNil)

	// The stored tree is a single leaf; cells below it inherit its value.
	err = data.Guide(&funcVisitor{
		in: []*attribute.Attribute{density},
		fn: func(info *Info) (Order, error) {
			if info.InputValues[0].Payload() != 5.0 {
				return StopRecursion, errors.Errorf("cell at %v did not inherit stored value", info.Minimum)
			}
			if v, ok := info.InputValue(density); !ok || v.Payload() != 5.0 {
				return StopRecursion, errors.New("InputValue lookup disagrees with InputValues")
			}
			if info.Size > 0.5 {
				return DefaultOrder, nil
			}
			return StopRecursion, nil
		},
	})
	test.That(t, err, test.ShouldBeNil)
}

func TestGuideOutputHelpers(t *testing.T) {
	logger := golog.NewTestLogger(t)
	color := newColorAttribute(t)
	density := newDensityAttribute(t)
	red := attribute.Color{R: 1, A: 1}

	t.Run("set output", func(t *testing.T) {
		data, err := NewMetavoxelData(2, logger)
		test.That(t, err, test.ShouldBeNil)
		err = data.Guide(&funcVisitor{
			out: []*attribute.Attribute{color},
			fn: func(info *Info) (Order, error) {
				if info.SetOutput(density, 1.0) {
					return StopRecursion, errors.New("wrote an undeclared output attribute")
				}
				if !info.SetOutput(color, red) {
					return StopRecursion, errors.New("declared output attribute rejected")
				}
				return StopRecursion, nil
			},
		})
		test.That(t, err, test.ShouldBeNil)
		got := data.ValueAt(color, r3.Vector{}).Payload().(attribute.Color)
		test.That(t, got.ApproxEqual(red), test.ShouldBeTrue)
	})

	t.Run("blend output starts from default", func(t *testing.T) {
		data, err := NewMetavoxelData(2, logger)
		test.That(t, err, test.ShouldBeNil)
		half := attribute.Color{G: 1, A: 0.5}
		err = data.Guide(&funcVisitor{
			out: []*attribute.Attribute{color},
			fn: func(info *Info) (Order, error) {
				info.BlendOutput(color, red)
				info.BlendOutput(color, half)
				return StopRecursion, nil
			},
		})
		test.That(t, err, test.ShouldBeNil)
		got := data.ValueAt(color, r3.Vector{}).Payload().(attribute.Color)
		test.That(t, got.ApproxEqual(half.Over(red)), test.ShouldBeTrue)
	})

	t.Run("untouched outputs leave the tree alone", func(t *testing.T) {
		data, err := NewMetavoxelData(2, logger)
		test.That(t, err, test.ShouldBeNil)
		err = data.Guide(&funcVisitor{
			out: []*attribute.Attribute{density},
			fn: func(info *Info) (Order, error) {
				return StopRecursion, nil
			},
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, data.NodeCount(density), test.ShouldEqual, 0)
	})
}

func TestGuideVisitorError(t *testing.T) {
	logger := golog.NewTestLogger(t)
	density := newDensityAttribute(t)

	data, err := NewMetavoxelData(2, logger)
	test.That(t, err, test.ShouldBeNil)
	err = GlobalSetEdit{Value: attribute.NewOwnedValue(density, 5.0)}.Apply(data, nil)
	test.That(t, err, test.ShouldBeNil)
	before := data.root(density)

	boom := errors.New("boom")
	err = data.Guide(&funcVisitor{
		out: []*attribute.Attribute{density},
		fn: func(info *Info) (Order, error) {
			if info.Size == 1 {
				return StopRecursion, boom
			}
			info.OutputValues[0] = attribute.NewValue(density, 9.0)
			return DefaultOrder, nil
		},
	})
	test.That(t, err, test.ShouldNotBeNil)
	// A failed traversal publishes nothing.
	test.That(t, data.root(density), test.ShouldEqual, before)
	test.That(t, data.ValueAt(density, r3.Vector{}).Payload(), test.ShouldEqual, 5.0)
}

func TestGuideRootCollapseToDefault(t *testing.T) {
	logger := golog.NewTestLogger(t)
	density := newDensityAttribute(t)

	data, err := NewMetavoxelData(2, logger)
	test.That(t, err, test.ShouldBeNil)
	err = GlobalSetEdit{Value: attribute.NewOwnedValue(density, 5.0)}.Apply(data, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, data.NodeCount(density), test.ShouldEqual, 1)

	// Writing the default everywhere deletes the tree entirely.
	err = GlobalSetEdit{Value: attribute.NewOwnedValue(density, 0.0)}.Apply(data, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, data.NodeCount(density), test.ShouldEqual, 0)
}
