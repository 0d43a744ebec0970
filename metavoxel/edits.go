package metavoxel

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.openvoxel.dev/engine/attribute"
	"go.openvoxel.dev/engine/spatial"
)

// Edit is one mutation command. Each variant carries only the data needed to
// apply itself once against a data set and the caller-supplied object table.
type Edit interface {
	Apply(data *MetavoxelData, objects *SharedObjectMap) error
}

// ApplyEdits applies edits serially, in order, collecting any errors. A
// failed edit does not stop the ones after it.
func ApplyEdits(data *MetavoxelData, objects *SharedObjectMap, edits ...Edit) error {
	var errs error
	for _, edit := range edits {
		errs = multierr.Append(errs, edit.Apply(data, objects))
	}
	return errs
}

// BoxSetEdit paints a uniform value over an axis-aligned region at limited
// precision.
type BoxSetEdit struct {
	Region      spatial.Box
	Granularity float64
	Value       attribute.OwnedValue
}

// Apply expands the bounds to contain the region, then assigns the value to
// every cell the region covers, down to the granularity limit where
// nearest-volume rounding decides.
func (e BoxSetEdit) Apply(data *MetavoxelData, _ *SharedObjectMap) error {
	if err := data.ExpandToContain(e.Region); err != nil {
		return err
	}
	if e.Region.Volume() <= 0 {
		// Degenerate regions still grow the bounds but are disjoint from
		// every cell, so there is nothing to visit.
		return nil
	}
	return data.Guide(&boxSetVisitor{edit: e})
}

type boxSetVisitor struct {
	edit BoxSetEdit
}

func (v *boxSetVisitor) InputAttributes() []*attribute.Attribute {
	return nil
}

func (v *boxSetVisitor) OutputAttributes() []*attribute.Attribute {
	return []*attribute.Attribute{v.edit.Value.Attribute()}
}

func (v *boxSetVisitor) Visit(info *Info) (Order, error) {
	bounds := info.Bounds()
	overlap := bounds.Intersection(v.edit.Region).Volume() / bounds.Volume()
	if overlap <= 0 {
		return StopRecursion, nil // disjoint
	}
	if overlap >= 1 {
		info.OutputValues[0] = v.edit.Value.Value
		return StopRecursion, nil // entirely contained
	}
	if info.Size <= v.edit.Granularity || info.IsLeaf {
		if overlap >= 0.5 {
			info.OutputValues[0] = v.edit.Value.Value
		}
		return StopRecursion, nil // granularity limit; take best guess
	}
	return DefaultOrder, nil
}

// GlobalSetEdit assigns a value at the root level, discarding existing finer
// structure for the attribute.
type GlobalSetEdit struct {
	Value attribute.OwnedValue
}

// Apply sets the value everywhere.
func (e GlobalSetEdit) Apply(data *MetavoxelData, _ *SharedObjectMap) error {
	return data.Guide(&globalSetVisitor{edit: e})
}

type globalSetVisitor struct {
	edit GlobalSetEdit
}

func (v *globalSetVisitor) InputAttributes() []*attribute.Attribute {
	return nil
}

func (v *globalSetVisitor) OutputAttributes() []*attribute.Attribute {
	return []*attribute.Attribute{v.edit.Value.Attribute()}
}

func (v *globalSetVisitor) Visit(info *Info) (Order, error) {
	info.OutputValues[0] = v.edit.Value.Value
	return StopRecursion, nil
}

// InsertSpannerEdit adds a spanner to an attribute's collection and
// voxelizes it.
type InsertSpannerEdit struct {
	Attribute *attribute.Attribute
	Spanner   Spanner
}

// Apply inserts and revoxelizes.
func (e InsertSpannerEdit) Apply(data *MetavoxelData, _ *SharedObjectMap) error {
	if e.Spanner == nil {
		return errors.New("insert spanner edit carries no spanner")
	}
	return data.InsertSpanner(e.Attribute, e.Spanner)
}

// RemoveSpannerEdit removes a spanner referenced by its table id.
type RemoveSpannerEdit struct {
	Attribute *attribute.Attribute
	ID        int
}

// Apply resolves the id and removes the spanner. An unknown id is a logged
// no-op so out-of-order or duplicated edit delivery cannot crash the engine.
func (e RemoveSpannerEdit) Apply(data *MetavoxelData, objects *SharedObjectMap) error {
	s, ok := objects.Get(e.ID)
	if !ok {
		data.logger.Debugw("no spanner for id; ignoring removal", "id", e.ID, "attribute", e.Attribute.Name())
		return nil
	}
	return data.RemoveSpanner(e.Attribute, s)
}

// ClearSpannersEdit empties an attribute's spanner collection.
type ClearSpannersEdit struct {
	Attribute *attribute.Attribute
}

// Apply clears the collection. No traversal follows.
func (e ClearSpannersEdit) Apply(data *MetavoxelData, _ *SharedObjectMap) error {
	data.ClearSpanners(e.Attribute)
	return nil
}

// SetDataEdit merges a complete secondary snapshot into the primary at a
// given origin.
type SetDataEdit struct {
	Minimum r3.Vector
	Data    *MetavoxelData
	Blend   bool
}

// Apply merges, overwriting or blending overlapping values per the flag.
func (e SetDataEdit) Apply(data *MetavoxelData, _ *SharedObjectMap) error {
	if e.Data == nil {
		return errors.New("set data edit carries no data")
	}
	return data.Set(e.Minimum, e.Data, e.Blend)
}

// paintRadiusExtension widens height-paint queries slightly to include
// neighboring tiles and avoid boundary artifacts at tile edges.
const paintRadiusExtension = 1.1

// PaintHeightfieldHeightEdit applies a height brush to every heightfield
// spanner near a position.
type PaintHeightfieldHeightEdit struct {
	Attribute *attribute.Attribute
	Position  r3.Vector
	Radius    float64
	Height    float64
}

// Apply queries spanners within the extended radius, paints each, and
// replaces the ones that returned a new instance.
func (e PaintHeightfieldHeightEdit) Apply(data *MetavoxelData, _ *SharedObjectMap) error {
	extent := e.Radius * paintRadiusExtension
	extents := r3.Vector{X: extent, Y: extent, Z: extent}
	region := spatial.Box{Min: e.Position.Sub(extents), Max: e.Position.Add(extents)}
	var errs error
	for _, s := range data.GetIntersecting(e.Attribute, region) {
		updated := s.PaintHeight(e.Position, e.Radius, e.Height)
		if updated != s {
			errs = multierr.Append(errs, data.ReplaceSpanner(e.Attribute, s, updated))
		}
	}
	return errs
}

// MaterialEdit carries the shared material payload of the material edit
// variants.
type MaterialEdit struct {
	Material     attribute.Value
	AverageColor attribute.Color
}

// effectiveColor quantizes the average color: paint mode forces full
// opacity, and anything under half opacity collapses to fully transparent so
// no partially transparent material is ever stored.
func (e MaterialEdit) effectiveColor(paint bool) attribute.Color {
	if paint {
		return e.AverageColor.WithAlpha(1)
	}
	if e.AverageColor.A < 0.5 {
		return attribute.Transparent
	}
	return e.AverageColor
}

// HeightfieldMaterialSpannerEdit applies a material to every spanner the
// region spanner touches.
type HeightfieldMaterialSpannerEdit struct {
	MaterialEdit
	Attribute *attribute.Attribute
	Spanner   Spanner
	Paint     bool
}

// Apply queries by the region spanner's bounds, applies the quantized
// material to each intersecting spanner, and replaces changed instances.
func (e HeightfieldMaterialSpannerEdit) Apply(data *MetavoxelData, _ *SharedObjectMap) error {
	if e.Spanner == nil {
		return errors.New("material spanner edit carries no region spanner")
	}
	color := e.effectiveColor(e.Paint)
	var errs error
	for _, s := range data.GetIntersecting(e.Attribute, e.Spanner.Bounds()) {
		updated := s.SetMaterial(e.Spanner, e.Material, color, e.Paint)
		if updated != s {
			errs = multierr.Append(errs, data.ReplaceSpanner(e.Attribute, s, updated))
		}
	}
	return errs
}

// SetSpannerEdit voxelizes a single spanner directly into the tree without
// adding it to any collection.
type SetSpannerEdit struct {
	Spanner Spanner
}

// Apply expands the bounds to contain the spanner and blends it in,
// subdividing for as long as the spanner asks.
func (e SetSpannerEdit) Apply(data *MetavoxelData, _ *SharedObjectMap) error {
	if e.Spanner == nil {
		return errors.New("set spanner edit carries no spanner")
	}
	if err := data.ExpandToContain(e.Spanner.Bounds()); err != nil {
		return err
	}
	return data.Guide(&setSpannerVisitor{spanner: e.Spanner})
}

type setSpannerVisitor struct {
	spanner Spanner
}

func (v *setSpannerVisitor) InputAttributes() []*attribute.Attribute {
	return nil
}

func (v *setSpannerVisitor) OutputAttributes() []*attribute.Attribute {
	return v.spanner.Attributes()
}

func (v *setSpannerVisitor) Visit(info *Info) (Order, error) {
	if !info.Bounds().Intersects(v.spanner.Bounds()) {
		return StopRecursion, nil
	}
	if v.spanner.BlendAttributeValues(info) && !info.IsLeaf {
		return DefaultOrder, nil
	}
	return StopRecursion, nil
}
