// Package spatial provides the axis-aligned geometry shared by the metavoxel
// engine: boxes over r3 vectors and helpers for the power-of-two cubes the
// octree is built from.
package spatial

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Box is an axis-aligned region of space described by its minimum and maximum
// corners. A valid box satisfies Min <= Max componentwise.
type Box struct {
	Min r3.Vector
	Max r3.Vector
}

// NewBox creates a box from two corners, validating the corner ordering.
func NewBox(min, max r3.Vector) (Box, error) {
	if min.X > max.X || min.Y > max.Y || min.Z > max.Z {
		return Box{}, errors.Errorf("invalid box corners: min %v exceeds max %v", min, max)
	}
	return Box{Min: min, Max: max}, nil
}

// BoxFromCube creates the axis-aligned cube with the given minimum corner and
// edge length.
func BoxFromCube(min r3.Vector, size float64) Box {
	return Box{Min: min, Max: min.Add(r3.Vector{X: size, Y: size, Z: size})}
}

// CubeAroundOrigin creates the origin-centered cube with the given edge length.
func CubeAroundOrigin(size float64) Box {
	half := size * 0.5
	return Box{
		Min: r3.Vector{X: -half, Y: -half, Z: -half},
		Max: r3.Vector{X: half, Y: half, Z: half},
	}
}

// Size returns the componentwise extent of the box.
func (b Box) Size() r3.Vector {
	return b.Max.Sub(b.Min)
}

// Volume returns the volume of the box. Degenerate boxes report zero.
func (b Box) Volume() float64 {
	s := b.Size()
	if s.X <= 0 || s.Y <= 0 || s.Z <= 0 {
		return 0
	}
	return s.X * s.Y * s.Z
}

// LongestSide returns the longest edge length of the box.
func (b Box) LongestSide() float64 {
	s := b.Size()
	return math.Max(s.X, math.Max(s.Y, s.Z))
}

// Contains reports whether the other box lies entirely within this one.
func (b Box) Contains(other Box) bool {
	return b.Min.X <= other.Min.X && b.Min.Y <= other.Min.Y && b.Min.Z <= other.Min.Z &&
		b.Max.X >= other.Max.X && b.Max.Y >= other.Max.Y && b.Max.Z >= other.Max.Z
}

// ContainsPoint reports whether the point lies within the box, boundary
// included.
func (b Box) ContainsPoint(p r3.Vector) bool {
	return p.X >= b.Min.X && p.Y >= b.Min.Y && p.Z >= b.Min.Z &&
		p.X <= b.Max.X && p.Y <= b.Max.Y && p.Z <= b.Max.Z
}

// Intersects reports whether the two boxes share any volume. Touching faces
// do not count as an intersection.
func (b Box) Intersects(other Box) bool {
	return b.Min.X < other.Max.X && b.Max.X > other.Min.X &&
		b.Min.Y < other.Max.Y && b.Max.Y > other.Min.Y &&
		b.Min.Z < other.Max.Z && b.Max.Z > other.Min.Z
}

// Intersection returns the overlapping region of the two boxes. A disjoint
// pair yields a degenerate box with zero volume; callers treat that as an
// empty region rather than an error.
func (b Box) Intersection(other Box) Box {
	return Box{
		Min: vectorMax(b.Min, other.Min),
		Max: vectorMin(b.Max, other.Max),
	}
}

// Translated returns the box shifted by the given offset.
func (b Box) Translated(offset r3.Vector) Box {
	return Box{Min: b.Min.Add(offset), Max: b.Max.Add(offset)}
}

// Expanded returns the box grown by the given margin on every face.
func (b Box) Expanded(margin float64) Box {
	m := r3.Vector{X: margin, Y: margin, Z: margin}
	return Box{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// Union returns the smallest box containing both boxes.
func (b Box) Union(other Box) Box {
	return Box{Min: vectorMin(b.Min, other.Min), Max: vectorMax(b.Max, other.Max)}
}

// Extended returns the smallest box containing both this box and the point.
func (b Box) Extended(p r3.Vector) Box {
	return Box{Min: vectorMin(b.Min, p), Max: vectorMax(b.Max, p)}
}

// Center returns the center point of the box.
func (b Box) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// String returns a human readable representation of the box.
func (b Box) String() string {
	return fmt.Sprintf("Box[(%.2f, %.2f, %.2f) - (%.2f, %.2f, %.2f)]",
		b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
}

func vectorMin(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
}

func vectorMax(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
}
