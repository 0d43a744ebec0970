package metavoxel

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"go.openvoxel.dev/engine/attribute"
	"go.openvoxel.dev/engine/spatial"
)

// defaultTerrainColor fills heightfield material rasters created without one.
var defaultTerrainColor = attribute.Color{R: 0.5, G: 0.5, B: 0.5, A: 1}

// Heightfield is a terrain spanner: a square raster of surface heights over
// an X/Z footprint, with a parallel material color raster. Columns below the
// surface voxelize as solid cells of the column's material color. Paint and
// material operations are functional updates returning new instances.
type Heightfield struct {
	id          int
	origin      r3.Vector
	spacing     float64
	samples     int
	heights     []float64
	colors      []attribute.Color
	granularity float64
	colorAttr   *attribute.Attribute
}

// NewHeightfield creates a heightfield with the given origin (minimum corner;
// Y is the terrain base), sample spacing, and square height raster. A nil
// color raster fills with the default terrain color.
func NewHeightfield(
	id int,
	origin r3.Vector,
	spacing float64,
	heights []float64,
	colors []attribute.Color,
	granularity float64,
	colorAttr *attribute.Attribute,
) (*Heightfield, error) {
	samples := int(math.Sqrt(float64(len(heights))))
	if samples < 2 || samples*samples != len(heights) {
		return nil, errors.Errorf("heightfield raster length %d is not a square of at least 2x2", len(heights))
	}
	if spacing <= 0 {
		return nil, errors.Errorf("invalid heightfield sample spacing (%.2f)", spacing)
	}
	if colors == nil {
		colors = make([]attribute.Color, len(heights))
		for i := range colors {
			colors[i] = defaultTerrainColor
		}
	} else if len(colors) != len(heights) {
		return nil, errors.Errorf("color raster length %d does not match height raster length %d", len(colors), len(heights))
	}
	return &Heightfield{
		id:          id,
		origin:      origin,
		spacing:     spacing,
		samples:     samples,
		heights:     heights,
		colors:      colors,
		granularity: granularity,
		colorAttr:   colorAttr,
	}, nil
}

// ID returns the spanner's table identity.
func (h *Heightfield) ID() int {
	return h.id
}

// Bounds covers the footprint horizontally and the terrain's height range
// vertically.
func (h *Heightfield) Bounds() spatial.Box {
	side := h.spacing * float64(h.samples-1)
	top := math.Max(floats.Max(h.heights), h.spacing)
	return spatial.Box{
		Min: h.origin,
		Max: h.origin.Add(r3.Vector{X: side, Y: top, Z: side}),
	}
}

// PlacementGranularity returns the minimum meaningful cell size.
func (h *Heightfield) PlacementGranularity() float64 {
	return h.granularity
}

// Attributes lists the color attribute the terrain voxelizes.
func (h *Heightfield) Attributes() []*attribute.Attribute {
	return []*attribute.Attribute{h.colorAttr}
}

// HeightAt returns the terrain height (absolute Y) at the given horizontal
// position, by nearest sample.
func (h *Heightfield) HeightAt(x, z float64) float64 {
	return h.origin.Y + h.heights[h.sampleIndex(x, z)]
}

// MaterialAt returns the material color at the given horizontal position, by
// nearest sample.
func (h *Heightfield) MaterialAt(x, z float64) attribute.Color {
	return h.colors[h.sampleIndex(x, z)]
}

func (h *Heightfield) sampleIndex(x, z float64) int {
	ix := h.clampIndex(math.Round((x - h.origin.X) / h.spacing))
	iz := h.clampIndex(math.Round((z - h.origin.Z) / h.spacing))
	return iz*h.samples + ix
}

func (h *Heightfield) clampIndex(i float64) int {
	if i < 0 {
		return 0
	}
	if i > float64(h.samples-1) {
		return h.samples - 1
	}
	return int(i)
}

// BlendAttributeValues voxelizes the terrain: cells entirely below the local
// surface range are solid, cells entirely above are empty, and boundary cells
// subdivide until the granularity limit, where the cell center decides.
func (h *Heightfield) BlendAttributeValues(info *Info) bool {
	bounds := info.Bounds()
	if !bounds.Intersects(h.Bounds()) {
		return false
	}
	low, high := h.heightRange(bounds)
	if bounds.Max.Y <= low {
		h.blendInto(info, bounds.Center())
		return false
	}
	if bounds.Min.Y >= high {
		return false
	}
	if info.IsLeaf || info.Size <= h.granularity {
		center := info.Center()
		if center.Y <= h.HeightAt(center.X, center.Z) {
			h.blendInto(info, center)
		}
		return false
	}
	return true
}

func (h *Heightfield) blendInto(info *Info, at r3.Vector) {
	info.BlendOutput(h.colorAttr, h.colors[h.sampleIndex(at.X, at.Z)])
}

// heightRange returns the minimum and maximum terrain heights (absolute Y)
// over the samples under the box's footprint.
func (h *Heightfield) heightRange(b spatial.Box) (float64, float64) {
	minIX := h.clampIndex(math.Floor((b.Min.X - h.origin.X) / h.spacing))
	maxIX := h.clampIndex(math.Ceil((b.Max.X - h.origin.X) / h.spacing))
	minIZ := h.clampIndex(math.Floor((b.Min.Z - h.origin.Z) / h.spacing))
	maxIZ := h.clampIndex(math.Ceil((b.Max.Z - h.origin.Z) / h.spacing))
	low := math.Inf(1)
	high := math.Inf(-1)
	for iz := minIZ; iz <= maxIZ; iz++ {
		for ix := minIX; ix <= maxIX; ix++ {
			v := h.origin.Y + h.heights[iz*h.samples+ix]
			low = math.Min(low, v)
			high = math.Max(high, v)
		}
	}
	return low, high
}

// PaintHeight raises or lowers the terrain under a radial cosine brush. A
// brush that misses the footprint returns the receiver unchanged; otherwise
// the result is a new instance with the same id.
func (h *Heightfield) PaintHeight(position r3.Vector, radius, height float64) Spanner {
	if radius <= 0 {
		return h
	}
	brush := spatial.Box{
		Min: r3.Vector{X: position.X - radius, Y: h.Bounds().Min.Y, Z: position.Z - radius},
		Max: r3.Vector{X: position.X + radius, Y: h.Bounds().Max.Y, Z: position.Z + radius},
	}
	if !brush.Intersects(h.Bounds()) {
		return h
	}
	heights := append([]float64(nil), h.heights...)
	touched := false
	for iz := 0; iz < h.samples; iz++ {
		for ix := 0; ix < h.samples; ix++ {
			sx := h.origin.X + float64(ix)*h.spacing
			sz := h.origin.Z + float64(iz)*h.spacing
			dist := math.Hypot(sx-position.X, sz-position.Z)
			if dist > radius {
				continue
			}
			falloff := 0.5 * (1 + math.Cos(math.Pi*dist/radius))
			heights[iz*h.samples+ix] = math.Max(0, heights[iz*h.samples+ix]+height*falloff)
			touched = true
		}
	}
	if !touched {
		return h
	}
	updated := *h
	updated.heights = heights
	return &updated
}

// SetMaterial stamps the color onto every sample whose surface point the
// region spanner covers. A transparent color erases the material there. The
// result is a new instance with the same id when anything changed.
func (h *Heightfield) SetMaterial(region Spanner, _ attribute.Value, color attribute.Color, _ bool) Spanner {
	if region == nil || !region.Bounds().Intersects(h.Bounds()) {
		return h
	}
	cover := region.Bounds()
	colors := append([]attribute.Color(nil), h.colors...)
	touched := false
	for iz := 0; iz < h.samples; iz++ {
		for ix := 0; ix < h.samples; ix++ {
			i := iz*h.samples + ix
			surface := r3.Vector{
				X: h.origin.X + float64(ix)*h.spacing,
				Y: h.origin.Y + h.heights[i],
				Z: h.origin.Z + float64(iz)*h.spacing,
			}
			if !cover.ContainsPoint(surface) {
				continue
			}
			if colors[i] != color {
				colors[i] = color
				touched = true
			}
		}
	}
	if !touched {
		return h
	}
	updated := *h
	updated.colors = colors
	return &updated
}
