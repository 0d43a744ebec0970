// Package attribute defines the typed attribute system of the metavoxel
// engine: immutable attribute descriptors, values tagged by their attribute,
// and the process-wide registry that owns the descriptors.
package attribute

import (
	"math"

	"github.com/pkg/errors"
)

// BlendFunc combines an existing payload with an incoming one and returns the
// blended result. The zero behavior (nil func) is replacement.
type BlendFunc func(under, over interface{}) interface{}

// EqualFunc reports whether two payloads are equal. Used when collapsing
// octree children into a single leaf.
type EqualFunc func(a, b interface{}) bool

// Attribute is an immutable descriptor for one kind of value stored in the
// octree. Attributes are compared by pointer identity; two registries never
// share descriptors.
type Attribute struct {
	name                   string
	lodThresholdMultiplier float64
	placementGranularity   float64
	defaultPayload         interface{}
	blend                  BlendFunc
	equal                  EqualFunc
}

// Config holds the tunable parts of an attribute descriptor.
type Config struct {
	// LODThresholdMultiplier controls how coarse-to-fine the octree
	// subdivides when voxelizing spanners for this attribute. Must be >= 1.
	LODThresholdMultiplier float64
	// PlacementGranularity is the minimum meaningful node size; traversal
	// stops refining this attribute once a node reaches it.
	PlacementGranularity float64
	// Default is the payload reported for nodes that carry no stored value.
	Default interface{}
	// Blend combines overlapping payloads when merging data sets. Nil means
	// the incoming payload replaces the existing one.
	Blend BlendFunc
	// Equal compares payloads; nil falls back to ==.
	Equal EqualFunc
}

// New creates an attribute descriptor. The descriptor is immutable once
// created.
func New(name string, cfg Config) (*Attribute, error) {
	if name == "" {
		return nil, errors.New("attribute name must be non-empty")
	}
	if cfg.LODThresholdMultiplier < 1 {
		return nil, errors.Errorf("attribute %q: lod threshold multiplier %.2f must be >= 1", name, cfg.LODThresholdMultiplier)
	}
	if cfg.PlacementGranularity < 0 {
		return nil, errors.Errorf("attribute %q: placement granularity %.2f must be >= 0", name, cfg.PlacementGranularity)
	}
	return &Attribute{
		name:                   name,
		lodThresholdMultiplier: cfg.LODThresholdMultiplier,
		placementGranularity:   cfg.PlacementGranularity,
		defaultPayload:         cfg.Default,
		blend:                  cfg.Blend,
		equal:                  cfg.Equal,
	}, nil
}

// Name returns the attribute's registered name.
func (a *Attribute) Name() string {
	return a.name
}

// LODThresholdMultiplier returns the level-of-detail threshold multiplier.
func (a *Attribute) LODThresholdMultiplier() float64 {
	return a.lodThresholdMultiplier
}

// PlacementGranularity returns the minimum meaningful node size.
func (a *Attribute) PlacementGranularity() float64 {
	return a.placementGranularity
}

// Default returns the attribute's default payload.
func (a *Attribute) Default() interface{} {
	return a.defaultPayload
}

// Blend combines two payloads according to the attribute's blend rule.
func (a *Attribute) Blend(under, over interface{}) interface{} {
	if a.blend == nil {
		return over
	}
	return a.blend(under, over)
}

// PayloadsEqual compares two payloads according to the attribute's equality
// rule.
func (a *Attribute) PayloadsEqual(x, y interface{}) bool {
	if a.equal != nil {
		return a.equal(x, y)
	}
	return x == y
}

// Color is an RGBA payload with components in [0, 1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Transparent is the fully transparent color.
var Transparent = Color{}

// WithAlpha returns the color with its alpha channel replaced.
func (c Color) WithAlpha(a float64) Color {
	c.A = a
	return c
}

// Over composites the color over a background color using straight alpha.
func (c Color) Over(under Color) Color {
	a := c.A + under.A*(1-c.A)
	if a == 0 {
		return Transparent
	}
	return Color{
		R: (c.R*c.A + under.R*under.A*(1-c.A)) / a,
		G: (c.G*c.A + under.G*under.A*(1-c.A)) / a,
		B: (c.B*c.A + under.B*under.A*(1-c.A)) / a,
		A: a,
	}
}

// ApproxEqual reports whether two colors match within a small tolerance.
func (c Color) ApproxEqual(other Color) bool {
	const eps = 1e-9
	return math.Abs(c.R-other.R) < eps && math.Abs(c.G-other.G) < eps &&
		math.Abs(c.B-other.B) < eps && math.Abs(c.A-other.A) < eps
}

// NewColorAttribute creates a color-valued attribute whose blend rule is
// alpha compositing.
func NewColorAttribute(name string, cfg Config) (*Attribute, error) {
	if cfg.Default == nil {
		cfg.Default = Transparent
	}
	if cfg.Blend == nil {
		cfg.Blend = func(under, over interface{}) interface{} {
			o, ok := over.(Color)
			if !ok {
				return under
			}
			u, ok := under.(Color)
			if !ok {
				return o
			}
			return o.Over(u)
		}
	}
	if cfg.Equal == nil {
		cfg.Equal = func(a, b interface{}) bool {
			x, okX := a.(Color)
			y, okY := b.(Color)
			return okX && okY && x.ApproxEqual(y)
		}
	}
	return New(name, cfg)
}

// NewFloatAttribute creates a scalar attribute whose blend rule keeps the
// incoming value.
func NewFloatAttribute(name string, cfg Config) (*Attribute, error) {
	if cfg.Default == nil {
		cfg.Default = 0.0
	}
	return New(name, cfg)
}
