package metavoxel

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.openvoxel.dev/engine/attribute"
	"go.openvoxel.dev/engine/spatial"
)

// blendInfo builds a detached traversal context for exercising spanner
// blending on a single cell.
func blendInfo(min r3.Vector, size float64, isLeaf bool, out ...*attribute.Attribute) *Info {
	return &Info{
		Minimum:      min,
		Size:         size,
		IsLeaf:       isLeaf,
		OutputValues: make([]attribute.Value, len(out)),
		outAttrs:     out,
	}
}

func TestSphereBlending(t *testing.T) {
	color := newColorAttribute(t)
	red := attribute.Color{R: 1, A: 1}
	sphere := NewSphere(1, r3.Vector{}, 1, 0.25, attribute.NewOwnedValue(color, red))

	test.That(t, sphere.ID(), test.ShouldEqual, 1)
	test.That(t, sphere.Bounds(), test.ShouldResemble, spatial.CubeAroundOrigin(2))
	test.That(t, sphere.Attributes(), test.ShouldResemble, []*attribute.Attribute{color})

	t.Run("cell fully inside", func(t *testing.T) {
		info := blendInfo(r3.Vector{X: -0.25, Y: -0.25, Z: -0.25}, 0.5, false, color)
		test.That(t, sphere.BlendAttributeValues(info), test.ShouldBeFalse)
		test.That(t, info.OutputValues[0].Payload().(attribute.Color).ApproxEqual(red), test.ShouldBeTrue)
	})

	t.Run("cell outside", func(t *testing.T) {
		info := blendInfo(r3.Vector{X: 2, Y: 2, Z: 2}, 0.5, false, color)
		test.That(t, sphere.BlendAttributeValues(info), test.ShouldBeFalse)
		test.That(t, info.OutputValues[0].Attribute(), test.ShouldBeNil)
	})

	t.Run("partial cell asks to subdivide", func(t *testing.T) {
		info := blendInfo(r3.Vector{X: 0.5, Y: -0.5, Z: -0.5}, 1, false, color)
		test.That(t, sphere.BlendAttributeValues(info), test.ShouldBeTrue)
		test.That(t, info.OutputValues[0].Attribute(), test.ShouldBeNil)
	})

	t.Run("center decides at the granularity limit", func(t *testing.T) {
		in := blendInfo(r3.Vector{X: 0.875, Y: -0.125, Z: -0.125}, 0.25, false, color)
		test.That(t, sphere.BlendAttributeValues(in), test.ShouldBeFalse)
		test.That(t, in.OutputValues[0].Payload().(attribute.Color).ApproxEqual(red), test.ShouldBeTrue)

		out := blendInfo(r3.Vector{X: 0.875, Y: 0.125, Z: 0.125}, 0.25, false, color)
		test.That(t, sphere.BlendAttributeValues(out), test.ShouldBeFalse)
		test.That(t, out.OutputValues[0].Attribute(), test.ShouldBeNil)
	})

	t.Run("leaf cell never asks to subdivide", func(t *testing.T) {
		info := blendInfo(r3.Vector{X: 0.5, Y: -0.5, Z: -0.5}, 1, true, color)
		test.That(t, sphere.BlendAttributeValues(info), test.ShouldBeFalse)
	})
}

func TestCuboidBlending(t *testing.T) {
	color := newColorAttribute(t)
	red := attribute.Color{R: 1, A: 1}
	box, err := spatial.NewBox(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 0, Y: 1, Z: 1})
	test.That(t, err, test.ShouldBeNil)
	cuboid := NewCuboid(2, box, 0.5, attribute.NewOwnedValue(color, red))

	test.That(t, cuboid.Bounds(), test.ShouldResemble, box)

	t.Run("full coverage blends", func(t *testing.T) {
		info := blendInfo(r3.Vector{X: -1, Y: -1, Z: -1}, 1, false, color)
		test.That(t, cuboid.BlendAttributeValues(info), test.ShouldBeFalse)
		test.That(t, info.OutputValues[0].Payload().(attribute.Color).ApproxEqual(red), test.ShouldBeTrue)
	})

	t.Run("partial coverage subdivides", func(t *testing.T) {
		info := blendInfo(r3.Vector{X: -1, Y: -1, Z: -1}, 2, false, color)
		test.That(t, cuboid.BlendAttributeValues(info), test.ShouldBeTrue)
	})

	t.Run("half coverage blends at the limit", func(t *testing.T) {
		info := blendInfo(r3.Vector{X: -0.25, Y: 0, Z: 0}, 0.5, false, color)
		test.That(t, cuboid.BlendAttributeValues(info), test.ShouldBeFalse)
		test.That(t, info.OutputValues[0].Payload().(attribute.Color).ApproxEqual(red), test.ShouldBeTrue)
	})

	t.Run("no coverage stops", func(t *testing.T) {
		info := blendInfo(r3.Vector{X: 5, Y: 5, Z: 5}, 1, false, color)
		test.That(t, cuboid.BlendAttributeValues(info), test.ShouldBeFalse)
		test.That(t, info.OutputValues[0].Attribute(), test.ShouldBeNil)
	})
}

func TestDistanceHelpers(t *testing.T) {
	b := spatial.CubeAroundOrigin(2)

	test.That(t, nearestDistance(r3.Vector{}, b), test.ShouldEqual, 0)
	test.That(t, nearestDistance(r3.Vector{X: 3, Y: 0, Z: 0}, b), test.ShouldEqual, 2)
	test.That(t, farthestDistance(r3.Vector{}, b), test.ShouldAlmostEqual, r3.Vector{X: 1, Y: 1, Z: 1}.Norm())
	test.That(t, farthestDistance(r3.Vector{X: 1, Y: 1, Z: 1}, b), test.ShouldAlmostEqual, r3.Vector{X: 2, Y: 2, Z: 2}.Norm())
}

func TestNewHeightfield(t *testing.T) {
	color := newColorAttribute(t)

	t.Run("raster must be square", func(t *testing.T) {
		_, err := NewHeightfield(1, r3.Vector{}, 1, make([]float64, 8), nil, 0.25, color)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("raster must be at least 2x2", func(t *testing.T) {
		_, err := NewHeightfield(1, r3.Vector{}, 1, make([]float64, 1), nil, 0.25, color)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("spacing must be positive", func(t *testing.T) {
		_, err := NewHeightfield(1, r3.Vector{}, 0, make([]float64, 4), nil, 0.25, color)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("color raster length must match", func(t *testing.T) {
		_, err := NewHeightfield(1, r3.Vector{}, 1, make([]float64, 4), make([]attribute.Color, 2), 0.25, color)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("nil colors fill with the default terrain color", func(t *testing.T) {
		hf, err := NewHeightfield(1, r3.Vector{}, 1, make([]float64, 4), nil, 0.25, color)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, hf.MaterialAt(0, 0), test.ShouldResemble, defaultTerrainColor)
	})
}

func TestHeightfieldSampling(t *testing.T) {
	color := newColorAttribute(t)

	// 3x3 raster over [0,2]x[0,2], row-major with Z rows.
	heights := []float64{
		0.1, 0.2, 0.3,
		0.4, 0.5, 0.6,
		0.7, 0.8, 0.9,
	}
	hf, err := NewHeightfield(1, r3.Vector{}, 1, heights, nil, 0.25, color)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, hf.HeightAt(0, 0), test.ShouldAlmostEqual, 0.1)
	test.That(t, hf.HeightAt(2, 0), test.ShouldAlmostEqual, 0.3)
	test.That(t, hf.HeightAt(1, 2), test.ShouldAlmostEqual, 0.8)
	// Nearest-sample lookup rounds to the closest grid point.
	test.That(t, hf.HeightAt(0.4, 0), test.ShouldAlmostEqual, 0.1)
	test.That(t, hf.HeightAt(0.6, 0), test.ShouldAlmostEqual, 0.2)
	// Queries off the footprint clamp to the border samples.
	test.That(t, hf.HeightAt(-5, -5), test.ShouldAlmostEqual, 0.1)
	test.That(t, hf.HeightAt(50, 50), test.ShouldAlmostEqual, 0.9)

	bounds := hf.Bounds()
	test.That(t, bounds.Min, test.ShouldResemble, r3.Vector{})
	test.That(t, bounds.Max.X, test.ShouldEqual, 2)
	test.That(t, bounds.Max.Z, test.ShouldEqual, 2)
	// The vertical extent covers at least one sample spacing.
	test.That(t, bounds.Max.Y, test.ShouldEqual, 1)
}

func TestHeightfieldBlending(t *testing.T) {
	color := newColorAttribute(t)

	heights := make([]float64, 9)
	for i := range heights {
		heights[i] = 1
	}
	hf, err := NewHeightfield(1, r3.Vector{}, 1, heights, nil, 0.25, color)
	test.That(t, err, test.ShouldBeNil)

	t.Run("cell below the surface is solid", func(t *testing.T) {
		info := blendInfo(r3.Vector{X: 0.5, Y: 0.25, Z: 0.5}, 0.5, false, color)
		test.That(t, hf.BlendAttributeValues(info), test.ShouldBeFalse)
		test.That(t, info.OutputValues[0].Payload().(attribute.Color).ApproxEqual(defaultTerrainColor), test.ShouldBeTrue)
	})

	t.Run("cell above the surface is empty", func(t *testing.T) {
		info := blendInfo(r3.Vector{X: 0.5, Y: 1, Z: 0.5}, 0.5, false, color)
		test.That(t, hf.BlendAttributeValues(info), test.ShouldBeFalse)
		test.That(t, info.OutputValues[0].Attribute(), test.ShouldBeNil)
	})

	t.Run("boundary cell at the limit decides by center", func(t *testing.T) {
		solid := blendInfo(r3.Vector{X: 0.5, Y: 0.75, Z: 0.5}, 0.25, false, color)
		test.That(t, hf.BlendAttributeValues(solid), test.ShouldBeFalse)
		test.That(t, solid.OutputValues[0].Payload().(attribute.Color).ApproxEqual(defaultTerrainColor), test.ShouldBeTrue)
	})
}

func TestHeightfieldPaintMiss(t *testing.T) {
	color := newColorAttribute(t)
	hf, err := NewHeightfield(1, r3.Vector{}, 1, make([]float64, 4), nil, 0.25, color)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, hf.PaintHeight(r3.Vector{X: 50, Y: 0, Z: 50}, 1, 1), test.ShouldEqual, hf)
	test.That(t, hf.PaintHeight(r3.Vector{}, 0, 1), test.ShouldEqual, hf)
	test.That(t, hf.SetMaterial(nil, attribute.Value{}, attribute.Transparent, false), test.ShouldEqual, hf)
}

func TestSharedObjectMap(t *testing.T) {
	color := newColorAttribute(t)
	objects := NewSharedObjectMap()

	sphere := NewSphere(7, r3.Vector{}, 1, 0.25, attribute.NewOwnedValue(color, attribute.Color{R: 1, A: 1}))
	objects.Add(7, sphere)

	got, ok := objects.Get(7)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got, test.ShouldEqual, sphere)

	_, ok = objects.Get(8)
	test.That(t, ok, test.ShouldBeFalse)

	objects.Remove(7)
	_, ok = objects.Get(7)
	test.That(t, ok, test.ShouldBeFalse)
}
