package metavoxel

import (
	"fmt"
	"math"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.openvoxel.dev/engine/attribute"
	"go.openvoxel.dev/engine/spatial"
)

// maxExpansions caps bounds doubling so a degenerate region cannot spin the
// expansion loop forever.
const maxExpansions = 64

// MetavoxelData is the octree root set: one tree per populated attribute,
// the spanner collections, and the overall bounds, an origin-centered
// power-of-two cube. Edits are applied serially to one instance; snapshots
// taken with Clone keep observing the pre-edit structure because nodes are
// never mutated in place.
type MetavoxelData struct {
	logger   golog.Logger
	size     float64
	roots    map[*attribute.Attribute]*node
	spanners map[*attribute.Attribute][]Spanner
}

// NewMetavoxelData creates an empty data set with the given bounds edge
// length, which must be a positive power of two.
func NewMetavoxelData(size float64, logger golog.Logger) (*MetavoxelData, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid bounds size (%.2f) for metavoxel data", size)
	}
	if exp := math.Log2(size); exp != math.Trunc(exp) {
		return nil, errors.Errorf("bounds size (%.2f) must be a power of two", size)
	}
	return &MetavoxelData{
		logger:   logger,
		size:     size,
		roots:    map[*attribute.Attribute]*node{},
		spanners: map[*attribute.Attribute][]Spanner{},
	}, nil
}

// Size returns the edge length of the bounds cube.
func (d *MetavoxelData) Size() float64 {
	return d.size
}

// Bounds returns the overall bounds, an origin-centered cube.
func (d *MetavoxelData) Bounds() spatial.Box {
	return spatial.CubeAroundOrigin(d.size)
}

// Clone returns an O(1) snapshot handle sharing every node with this
// instance. Edits applied to either handle clone the paths they change and
// leave the other handle's view intact.
func (d *MetavoxelData) Clone() *MetavoxelData {
	roots := make(map[*attribute.Attribute]*node, len(d.roots))
	for attr, root := range d.roots {
		roots[attr] = root
	}
	spanners := make(map[*attribute.Attribute][]Spanner, len(d.spanners))
	for attr, set := range d.spanners {
		spanners[attr] = append([]Spanner(nil), set...)
	}
	return &MetavoxelData{logger: d.logger, size: d.size, roots: roots, spanners: spanners}
}

// Expand doubles the bounds in place. Each root gains a new parent in which
// old child i becomes the inner-corner grandchild (opposite octant) of new
// child i, so existing content keeps its position while fresh default space
// appears around it. Bounds only ever grow.
func (d *MetavoxelData) Expand() {
	for attr, root := range d.roots {
		d.roots[attr] = expandRoot(root, attr)
	}
	d.size *= 2
}

func expandRoot(root *node, attr *attribute.Attribute) *node {
	def := attribute.DefaultValue(attr)
	var parents [childCount]*node
	for i := 0; i < childCount; i++ {
		var grandchildren [childCount]*node
		for j := range grandchildren {
			grandchildren[j] = newLeaf(def)
		}
		opposite := oppositeOctant(i)
		if root.isLeaf() {
			grandchildren[opposite] = newLeaf(root.value)
		} else {
			grandchildren[opposite] = root.children[i]
		}
		parents[i] = collapse(root.value, grandchildren)
	}
	return collapse(root.value, parents)
}

// ExpandToContain doubles the bounds until the region fits.
func (d *MetavoxelData) ExpandToContain(region spatial.Box) error {
	for i := 0; !d.Bounds().Contains(region); i++ {
		if i >= maxExpansions {
			return errors.Errorf("region %v cannot be contained after %d expansions", region, maxExpansions)
		}
		d.Expand()
	}
	return nil
}

// ValueAt returns the stored value for the attribute at the given point,
// descending to the leaf containing it. Points outside the bounds and
// attributes with no tree report the attribute default.
func (d *MetavoxelData) ValueAt(attr *attribute.Attribute, p r3.Vector) attribute.Value {
	n := d.roots[attr]
	if n == nil || !d.Bounds().ContainsPoint(p) {
		return attribute.DefaultValue(attr)
	}
	min := d.Bounds().Min
	size := d.size
	for !n.isLeaf() {
		half := size * 0.5
		var index int
		index, min = octantForPoint(min, half, p)
		n = n.children[index]
		size = half
	}
	return n.value
}

// NodeCount returns the number of nodes in the attribute's tree.
func (d *MetavoxelData) NodeCount(attr *attribute.Attribute) int {
	return d.roots[attr].count()
}

// root exposes the attribute's root node for structural comparisons in tests.
func (d *MetavoxelData) root(attr *attribute.Attribute) *node {
	return d.roots[attr]
}

// sample finds the smallest node fully containing the box. The second result
// reports whether the region is uniform, i.e. covered by a single leaf.
func (d *MetavoxelData) sample(attr *attribute.Attribute, region spatial.Box) (attribute.Value, bool) {
	n := d.roots[attr]
	if n == nil {
		return attribute.DefaultValue(attr), true
	}
	min := d.Bounds().Min
	size := d.size
	if !d.Bounds().Contains(region) {
		return n.value, false
	}
	for !n.isLeaf() {
		half := size * 0.5
		contained := -1
		for index := 0; index < childCount; index++ {
			if spatial.BoxFromCube(childMinimum(min, half, index), half).Contains(region) {
				contained = index
				break
			}
		}
		if contained < 0 {
			return n.value, false
		}
		min = childMinimum(min, half, contained)
		size = half
		n = n.children[contained]
	}
	return n.value, true
}

// InsertSpanner adds the spanner to the attribute's collection, growing the
// bounds to contain it, then revoxelizes the spanner's attributes.
func (d *MetavoxelData) InsertSpanner(attr *attribute.Attribute, s Spanner) error {
	if err := d.ExpandToContain(s.Bounds()); err != nil {
		return err
	}
	d.spanners[attr] = append(append([]Spanner(nil), d.spanners[attr]...), s)
	return d.revoxelize(attr, s.Attributes(), s.Bounds(), s.PlacementGranularity())
}

// RemoveSpanner unlinks the spanner from the attribute's collection and
// revoxelizes its region from the spanners that remain. Removing a spanner
// that is not present is a logged no-op; edit streams may be delivered out of
// order or more than once.
func (d *MetavoxelData) RemoveSpanner(attr *attribute.Attribute, s Spanner) error {
	// Hold the removed spanner until revoxelization completes.
	removed, rest := unlinkSpanner(d.spanners[attr], s)
	if removed == nil {
		d.logger.Debugw("spanner not in collection; ignoring removal", "attribute", attr.Name())
		return nil
	}
	d.spanners[attr] = rest
	return d.revoxelize(attr, removed.Attributes(), removed.Bounds(), removed.PlacementGranularity())
}

// ReplaceSpanner structurally swaps an old spanner instance for the new one
// returned by a mutating operation and revoxelizes the union of their
// regions.
func (d *MetavoxelData) ReplaceSpanner(attr *attribute.Attribute, old, updated Spanner) error {
	set := d.spanners[attr]
	replaced := false
	rest := make([]Spanner, 0, len(set))
	for _, existing := range set {
		if !replaced && sameSpanner(existing, old) {
			rest = append(rest, updated)
			replaced = true
			continue
		}
		rest = append(rest, existing)
	}
	if !replaced {
		d.logger.Debugw("spanner not in collection; ignoring replacement", "attribute", attr.Name())
		return nil
	}
	if err := d.ExpandToContain(updated.Bounds()); err != nil {
		return err
	}
	d.spanners[attr] = rest
	region := old.Bounds().Union(updated.Bounds())
	return d.revoxelize(attr, updated.Attributes(), region, updated.PlacementGranularity())
}

// ClearSpanners unconditionally empties the attribute's collection. No
// traversal follows; stale voxelized values persist until the next edit.
func (d *MetavoxelData) ClearSpanners(attr *attribute.Attribute) {
	delete(d.spanners, attr)
}

// GetIntersecting returns the collection spanners whose bounds intersect the
// box, in insertion order.
func (d *MetavoxelData) GetIntersecting(attr *attribute.Attribute, region spatial.Box) []Spanner {
	var results []Spanner
	for _, s := range d.spanners[attr] {
		if s.Bounds().Intersects(region) {
			results = append(results, s)
		}
	}
	return results
}

func unlinkSpanner(set []Spanner, s Spanner) (Spanner, []Spanner) {
	for i, existing := range set {
		if sameSpanner(existing, s) {
			rest := make([]Spanner, 0, len(set)-1)
			rest = append(rest, set[:i]...)
			rest = append(rest, set[i+1:]...)
			return existing, rest
		}
	}
	return nil, set
}

// sameSpanner matches by id so that a functional update (a new instance with
// the same id) is still found by later edits holding the old instance.
func sameSpanner(a, b Spanner) bool {
	if a == b {
		return true
	}
	return a.ID() != 0 && a.ID() == b.ID()
}

// revoxelize reruns spanner voxelization for the given attributes over a
// region, recomputing each voxel from the spanners currently in the
// collection.
func (d *MetavoxelData) revoxelize(
	spannerAttr *attribute.Attribute,
	attrs []*attribute.Attribute,
	region spatial.Box,
	placementGranularity float64,
) error {
	if len(attrs) == 0 {
		return nil
	}
	multiplier := spannerAttr.LODThresholdMultiplier()
	voxelizationSize := math.Max(region.LongestSide(), placementGranularity) * 2 / multiplier
	// Empirically tuned step count; not derived from the voxelization size.
	steps := int(math.Round(math.Log2(multiplier) - 2))
	if steps < 0 {
		steps = 0
	}
	return d.Guide(&updateSpannerVisitor{
		data:             d,
		spannerAttr:      spannerAttr,
		out:              attrs,
		region:           region,
		voxelizationSize: voxelizationSize,
		steps:            steps,
	})
}

// updateSpannerVisitor rebuilds voxelized attribute values inside a region.
// At each visited cell it walks up its ancestor-blend step count of parent
// links to the coarser cell owning the spanner working set, resets the
// outputs to defaults, and blends in every spanner found there.
type updateSpannerVisitor struct {
	data             *MetavoxelData
	spannerAttr      *attribute.Attribute
	out              []*attribute.Attribute
	region           spatial.Box
	voxelizationSize float64
	steps            int
}

func (v *updateSpannerVisitor) InputAttributes() []*attribute.Attribute {
	return nil
}

func (v *updateSpannerVisitor) OutputAttributes() []*attribute.Attribute {
	return v.out
}

func (v *updateSpannerVisitor) Visit(info *Info) (Order, error) {
	if !info.Bounds().Intersects(v.region) {
		return StopRecursion, nil
	}
	ancestor := info.Ancestor(v.steps)
	if info.Size <= v.voxelizationSize {
		// The contribution is fixed at this size; mark the cell a leaf so
		// each spanner applies its granularity-limit rounding instead of
		// asking for refinement it will not get.
		info.IsLeaf = true
	}
	for _, attr := range v.out {
		info.SetOutput(attr, attr.Default())
	}
	for _, s := range v.data.GetIntersecting(v.spannerAttr, ancestor.Bounds()) {
		s.BlendAttributeValues(info)
	}
	if info.IsLeaf {
		return StopRecursion, nil
	}
	return DefaultOrder, nil
}

// Set merges a complete secondary snapshot into this one with the secondary's
// minimum corner placed at the given position. With blend set, overlapping
// values combine under each attribute's blend rule; otherwise the secondary
// overwrites.
func (d *MetavoxelData) Set(minimum r3.Vector, other *MetavoxelData, blend bool) error {
	region := spatial.BoxFromCube(minimum, other.size)
	offset := minimum.Sub(other.Bounds().Min)
	if err := d.ExpandToContain(region); err != nil {
		return err
	}
	for attr := range other.roots {
		visitor := &setDataVisitor{
			source: other,
			attr:   attr,
			region: region,
			offset: offset,
			blend:  blend,
		}
		if err := d.Guide(visitor); err != nil {
			return errors.Wrapf(err, "merging attribute %q", attr.Name())
		}
	}
	return nil
}

// setDataVisitor copies one attribute tree out of a source snapshot into the
// guided tree, subdividing until the source region under a cell is uniform.
type setDataVisitor struct {
	source *MetavoxelData
	attr   *attribute.Attribute
	region spatial.Box
	offset r3.Vector
	blend  bool
}

func (v *setDataVisitor) InputAttributes() []*attribute.Attribute {
	return []*attribute.Attribute{v.attr}
}

func (v *setDataVisitor) OutputAttributes() []*attribute.Attribute {
	return []*attribute.Attribute{v.attr}
}

func (v *setDataVisitor) Visit(info *Info) (Order, error) {
	bounds := info.Bounds()
	if !bounds.Intersects(v.region) {
		return StopRecursion, nil
	}
	if v.region.Contains(bounds) {
		sourceRegion := bounds.Translated(v.offset.Mul(-1))
		value, uniform := v.source.sample(v.attr, sourceRegion)
		if uniform || info.IsLeaf {
			if !uniform {
				value = v.source.ValueAt(v.attr, sourceRegion.Center())
			}
			v.emit(info, value)
			return StopRecursion, nil
		}
		return DefaultOrder, nil
	}
	if info.IsLeaf {
		// Cell straddles the merge boundary at the resolution limit:
		// nearest-volume rounding, as in box-set.
		overlap := bounds.Intersection(v.region).Volume() / bounds.Volume()
		if overlap >= 0.5 {
			center := bounds.Intersection(v.region).Center().Sub(v.offset)
			v.emit(info, v.source.ValueAt(v.attr, center))
		}
		return StopRecursion, nil
	}
	return DefaultOrder, nil
}

func (v *setDataVisitor) emit(info *Info, value attribute.Value) {
	if v.blend {
		info.OutputValues[0] = info.InputValues[0].Blend(value)
		return
	}
	info.OutputValues[0] = value
}

// String summarizes the data set for diagnostics.
func (d *MetavoxelData) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "MetavoxelData[size=%.2f", d.size)
	for attr, root := range d.roots {
		fmt.Fprintf(&b, " %s:%d", attr.Name(), root.count())
	}
	for attr, set := range d.spanners {
		fmt.Fprintf(&b, " %s-spanners:%d", attr.Name(), len(set))
	}
	b.WriteString("]")
	return b.String()
}
