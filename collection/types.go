package collection

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nci/gocube/utils"
)

// BandAsset points at the dataset holding one band of one image. The
// path is anything GDAL can open, including /vsicurl/ prefixed remote
// cloud-optimized imagery.
type BandAsset struct {
	Path       string  `json:"path"`
	RasterType string  `json:"array_type"`
	NoData     float64 `json:"nodata"`

	// Optional source geometry recorded by the crawler. When every
	// requested band of an image carries the same geometry the reader
	// composes a single multi-band VRT instead of opening each asset.
	Height       int       `json:"height,omitempty"`
	Width        int       `json:"width,omitempty"`
	Geotransform []float64 `json:"geotransform,omitempty"`
}

// SameGeometry reports whether two assets describe co-registered
// grids. Assets without recorded geometry never match.
func (a *BandAsset) SameGeometry(b *BandAsset) bool {
	if a.Height == 0 || a.Width == 0 || len(a.Geotransform) != 6 || len(b.Geotransform) != 6 {
		return false
	}
	if a.Height != b.Height || a.Width != b.Width {
		return false
	}
	for i := range a.Geotransform {
		if a.Geotransform[i] != b.Geotransform[i] {
			return false
		}
	}
	return true
}

// Image is a single observation at one timestamp. Immutable once
// indexed; the engine never touches pixel data at this level.
type Image struct {
	ID        string                `json:"id"`
	TimeStamp time.Time             `json:"timestamp"`
	Polygon   string                `json:"polygon"`
	CRS       string                `json:"crs"`
	Bands     map[string]*BandAsset `json:"bands"`
	Metadata  map[string]float64    `json:"metadata"`
}

// Collection is an ordered set of images sharing a band vocabulary.
// Within a collection a band name always maps to one raster type,
// though images may differ in resolution, CRS and footprint.
type Collection struct {
	Name      string
	Images    []*Image
	BandNames []string
	BandTypes map[string]string
}

// FootprintBBox computes the bounding box of a WKT POLYGON footprint.
// Only the outer ring vertices matter for a bounding box, which is all
// the indexer needs; the warp stage does the precise clipping.
func FootprintBBox(wkt string) (utils.Extent, error) {
	var ext utils.Extent
	start := strings.Index(wkt, "((")
	end := strings.LastIndex(wkt, "))")
	if start < 0 || end < 0 || end <= start {
		return ext, fmt.Errorf("malformed footprint polygon: %v", wkt)
	}

	first := true
	for _, pair := range strings.Split(wkt[start+2:end], ",") {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) < 2 {
			return ext, fmt.Errorf("malformed footprint vertex '%v' in %v", pair, wkt)
		}
		x, errX := strconv.ParseFloat(fields[0], 64)
		y, errY := strconv.ParseFloat(fields[1], 64)
		if errX != nil || errY != nil {
			return ext, fmt.Errorf("malformed footprint vertex '%v' in %v", pair, wkt)
		}

		if first {
			ext = utils.Extent{Left: x, Right: x, Bottom: y, Top: y}
			first = false
			continue
		}
		if x < ext.Left {
			ext.Left = x
		}
		if x > ext.Right {
			ext.Right = x
		}
		if y < ext.Bottom {
			ext.Bottom = y
		}
		if y > ext.Top {
			ext.Top = y
		}
	}

	if first {
		return ext, fmt.Errorf("empty footprint polygon: %v", wkt)
	}
	return ext, nil
}

// BBox2WKT renders a bounding box as a closed WKT polygon.
func BBox2WKT(bbox utils.Extent) string {
	return fmt.Sprintf("POLYGON ((%f %f, %f %f, %f %f, %f %f, %f %f))",
		bbox.Left, bbox.Bottom, bbox.Right, bbox.Bottom, bbox.Right, bbox.Top,
		bbox.Left, bbox.Top, bbox.Left, bbox.Bottom)
}

// Intersecting returns the images whose footprint bbox overlaps the
// given extent and whose timestamp falls in [start, end). Metadata
// only, no pixel I/O. Images with unparsable footprints are skipped.
func (c *Collection) Intersecting(bbox utils.Extent, start, end time.Time) []*Image {
	var out []*Image
	for _, img := range c.Images {
		if img.TimeStamp.Before(start) || !img.TimeStamp.Before(end) {
			continue
		}
		fp, err := FootprintBBox(img.Polygon)
		if err != nil {
			continue
		}
		if fp.Right <= bbox.Left || fp.Left >= bbox.Right ||
			fp.Top <= bbox.Bottom || fp.Bottom >= bbox.Top {
			continue
		}
		out = append(out, img)
	}
	return out
}
