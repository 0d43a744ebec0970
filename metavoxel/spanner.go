package metavoxel

import (
	"math"

	"github.com/golang/geo/r3"

	"go.openvoxel.dev/engine/attribute"
	"go.openvoxel.dev/engine/spatial"
)

// Spanner is a shared, boundable spatial object voxelized into the octree at
// a resolution derived from its extent and the spanner attribute's LOD
// threshold multiplier. Mutating operations never modify a spanner in place;
// they may return a different instance, and callers must structurally replace
// the old instance with the returned one wherever it is stored.
type Spanner interface {
	// ID is the opaque identity edits use to reference the spanner through
	// the shared-object table; it survives functional updates. Zero means
	// unidentified.
	ID() int
	Bounds() spatial.Box
	// PlacementGranularity is the smallest meaningful cell size for the
	// spanner's contribution.
	PlacementGranularity() float64
	// Attributes lists the attributes the spanner voxelizes.
	Attributes() []*attribute.Attribute
	// BlendAttributeValues blends the spanner's contribution into the
	// cell's outputs, returning true while finer subdivision would improve
	// the result.
	BlendAttributeValues(info *Info) bool
	// PaintHeight applies a height brush, returning the authoritative
	// instance (possibly new, possibly the receiver unchanged).
	PaintHeight(position r3.Vector, radius, height float64) Spanner
	// SetMaterial applies a material over the part of the spanner covered
	// by the region spanner, following the same replacement rule.
	SetMaterial(region Spanner, material attribute.Value, color attribute.Color, paint bool) Spanner
}

// SharedObjectMap is the non-owning id-to-spanner table edits resolve ids
// against. The caller keeps it consistent with previously inserted spanners;
// the map itself never keeps a spanner alive on the engine's behalf.
type SharedObjectMap struct {
	objects map[int]Spanner
}

// NewSharedObjectMap creates an empty object table.
func NewSharedObjectMap() *SharedObjectMap {
	return &SharedObjectMap{objects: map[int]Spanner{}}
}

// Add associates an id with a spanner, replacing any prior association.
func (m *SharedObjectMap) Add(id int, s Spanner) {
	m.objects[id] = s
}

// Get resolves an id.
func (m *SharedObjectMap) Get(id int) (Spanner, bool) {
	s, ok := m.objects[id]
	return s, ok
}

// Remove drops an association.
func (m *SharedObjectMap) Remove(id int) {
	delete(m.objects, id)
}

// Sphere is a primitive spanner filling a ball with fixed attribute values.
type Sphere struct {
	id          int
	center      r3.Vector
	radius      float64
	granularity float64
	values      []attribute.OwnedValue
}

// NewSphere creates a sphere spanner carrying the given values.
func NewSphere(id int, center r3.Vector, radius, granularity float64, values ...attribute.OwnedValue) *Sphere {
	return &Sphere{id: id, center: center, radius: radius, granularity: granularity, values: values}
}

// ID returns the spanner's table identity.
func (s *Sphere) ID() int {
	return s.id
}

// Center returns the sphere's center.
func (s *Sphere) Center() r3.Vector {
	return s.center
}

// Radius returns the sphere's radius.
func (s *Sphere) Radius() float64 {
	return s.radius
}

// Bounds returns the sphere's bounding cube.
func (s *Sphere) Bounds() spatial.Box {
	extent := r3.Vector{X: s.radius, Y: s.radius, Z: s.radius}
	return spatial.Box{Min: s.center.Sub(extent), Max: s.center.Add(extent)}
}

// PlacementGranularity returns the minimum meaningful cell size.
func (s *Sphere) PlacementGranularity() float64 {
	return s.granularity
}

// Attributes lists the attributes the sphere's values cover.
func (s *Sphere) Attributes() []*attribute.Attribute {
	attrs := make([]*attribute.Attribute, len(s.values))
	for i, v := range s.values {
		attrs[i] = v.Attribute()
	}
	return attrs
}

// BlendAttributeValues blends the sphere's values into cells it covers.
// Partially covered cells keep subdividing until the granularity limit, where
// center-in-sphere decides, mirroring nearest-volume rounding.
func (s *Sphere) BlendAttributeValues(info *Info) bool {
	bounds := info.Bounds()
	if nearestDistance(s.center, bounds) > s.radius {
		return false
	}
	if farthestDistance(s.center, bounds) <= s.radius {
		s.blendInto(info)
		return false
	}
	if info.IsLeaf || info.Size <= s.granularity {
		if info.Center().Sub(s.center).Norm() <= s.radius {
			s.blendInto(info)
		}
		return false
	}
	return true
}

func (s *Sphere) blendInto(info *Info) {
	for _, v := range s.values {
		info.BlendOutput(v.Attribute(), v.Payload())
	}
}

// PaintHeight is a no-op for spheres; the receiver stays authoritative.
func (s *Sphere) PaintHeight(r3.Vector, float64, float64) Spanner {
	return s
}

// SetMaterial is a no-op for spheres.
func (s *Sphere) SetMaterial(Spanner, attribute.Value, attribute.Color, bool) Spanner {
	return s
}

// Cuboid is a primitive spanner filling an axis-aligned box with fixed
// attribute values.
type Cuboid struct {
	id          int
	bounds      spatial.Box
	granularity float64
	values      []attribute.OwnedValue
}

// NewCuboid creates a cuboid spanner carrying the given values.
func NewCuboid(id int, bounds spatial.Box, granularity float64, values ...attribute.OwnedValue) *Cuboid {
	return &Cuboid{id: id, bounds: bounds, granularity: granularity, values: values}
}

// ID returns the spanner's table identity.
func (c *Cuboid) ID() int {
	return c.id
}

// Bounds returns the cuboid's box.
func (c *Cuboid) Bounds() spatial.Box {
	return c.bounds
}

// PlacementGranularity returns the minimum meaningful cell size.
func (c *Cuboid) PlacementGranularity() float64 {
	return c.granularity
}

// Attributes lists the attributes the cuboid's values cover.
func (c *Cuboid) Attributes() []*attribute.Attribute {
	attrs := make([]*attribute.Attribute, len(c.values))
	for i, v := range c.values {
		attrs[i] = v.Attribute()
	}
	return attrs
}

// BlendAttributeValues blends by exact overlap volume: full coverage blends,
// zero coverage stops, and at the granularity limit coverage of at least half
// the cell blends.
func (c *Cuboid) BlendAttributeValues(info *Info) bool {
	bounds := info.Bounds()
	overlap := bounds.Intersection(c.bounds).Volume() / bounds.Volume()
	if overlap <= 0 {
		return false
	}
	if overlap >= 1 {
		c.blendInto(info)
		return false
	}
	if info.IsLeaf || info.Size <= c.granularity {
		if overlap >= 0.5 {
			c.blendInto(info)
		}
		return false
	}
	return true
}

func (c *Cuboid) blendInto(info *Info) {
	for _, v := range c.values {
		info.BlendOutput(v.Attribute(), v.Payload())
	}
}

// PaintHeight is a no-op for cuboids.
func (c *Cuboid) PaintHeight(r3.Vector, float64, float64) Spanner {
	return c
}

// SetMaterial is a no-op for cuboids.
func (c *Cuboid) SetMaterial(Spanner, attribute.Value, attribute.Color, bool) Spanner {
	return c
}

// nearestDistance returns the distance from the point to the closest point of
// the box; zero when the point is inside.
func nearestDistance(p r3.Vector, b spatial.Box) float64 {
	dx := axisDistance(p.X, b.Min.X, b.Max.X)
	dy := axisDistance(p.Y, b.Min.Y, b.Max.Y)
	dz := axisDistance(p.Z, b.Min.Z, b.Max.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// farthestDistance returns the distance from the point to the farthest corner
// of the box.
func farthestDistance(p r3.Vector, b spatial.Box) float64 {
	dx := math.Max(math.Abs(p.X-b.Min.X), math.Abs(p.X-b.Max.X))
	dy := math.Max(math.Abs(p.Y-b.Min.Y), math.Abs(p.Y-b.Max.Y))
	dz := math.Max(math.Abs(p.Z-b.Min.Z), math.Abs(p.Z-b.Max.Z))
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func axisDistance(v, min, max float64) float64 {
	if v < min {
		return min - v
	}
	if v > max {
		return v - max
	}
	return 0
}
