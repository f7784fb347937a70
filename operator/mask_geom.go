package operator

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
	geo "github.com/nci/geometry"
	"golang.org/x/net/context"

	"github.com/nci/gocube/processor"
	"github.com/nci/gocube/utils"
)

// MaskGeomNode blanks every cell falling outside a polygonal feature.
// The feature must be expressed in the cube CRS.
type MaskGeomNode struct {
	input Node
	feat  geo.Feature
}

// FilterGeom appends a geometric mask node. Only Polygon and
// MultiPolygon features are supported.
func (g *Graph) FilterGeom(input Node, feat geo.Feature) (Node, error) {
	switch feat.Geometry.(type) {
	case *geo.Polygon, *geo.MultiPolygon:
	default:
		return nil, &utils.ConfigurationError{
			Reason: "only Polygon and MultiPolygon features are supported"}
	}
	return g.add(&MaskGeomNode{input: input, feat: feat}), nil
}

func (n *MaskGeomNode) Label() string { return "filter_geom" }

func (n *MaskGeomNode) Inputs() []Node { return []Node{n.input} }

func (n *MaskGeomNode) Compute(ctx context.Context, inputs []*processor.Cube) (*processor.Cube, error) {
	in := inputs[0]

	mask, err := rasterizeFeature(n.feat, in)
	if err != nil {
		return nil, err
	}

	out := &processor.Cube{
		View:     in.View,
		Bands:    in.Bands,
		Times:    in.Times,
		Height:   in.Height,
		Width:    in.Width,
		Failures: in.Failures,
		Data:     make([]float64, len(in.Data)),
	}
	copy(out.Data, in.Data)

	nt := len(in.Times)
	size := in.Height * in.Width
	nan := math.NaN()
	for c := 0; c < size; c++ {
		if mask[c] != 0 {
			continue
		}
		for b := range in.Bands {
			for t := 0; t < nt; t++ {
				out.Data[(b*nt+t)*size+c] = nan
			}
		}
	}

	return out, nil
}

// rasterizeFeature burns the feature onto the cube grid, returning 255
// for covered cells and 0 elsewhere.
func rasterizeFeature(feat geo.Feature, cube *processor.Cube) ([]byte, error) {
	wkt, err := geometryWKT(feat.Geometry)
	if err != nil {
		return nil, err
	}

	srs, err := spatialRefFromCRS(cube.View.CRS)
	if err != nil {
		return nil, err
	}
	defer srs.Close()

	geom, err := godal.NewGeometryFromWKT(wkt, srs)
	if err != nil {
		return nil, fmt.Errorf("feature geometry could not be parsed: %v", err)
	}
	defer geom.Close()

	ds, err := godal.Create(godal.Memory, "", 1, godal.Byte, cube.Width, cube.Height)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	view := cube.View
	xRes := (view.Right - view.Left) / float64(cube.Width)
	yRes := (view.Top - view.Bottom) / float64(cube.Height)
	if err := ds.SetGeoTransform([6]float64{view.Left, xRes, 0, view.Top, 0, -yRes}); err != nil {
		return nil, err
	}
	if err := ds.SetSpatialRef(srs); err != nil {
		return nil, err
	}

	err = ds.RasterizeGeometry(geom, godal.Bands(0), godal.Values(255), godal.AllTouched())
	if err != nil {
		return nil, fmt.Errorf("rasterize error: %v", err)
	}

	buf := make([]byte, cube.Width*cube.Height)
	if err := ds.Bands()[0].Read(0, 0, buf, cube.Width, cube.Height); err != nil {
		return nil, err
	}
	return buf, nil
}

// geometryWKT renders a GeoJSON geometry as WKT via its coordinate
// arrays, sidestepping per-type struct layouts.
func geometryWKT(geom geo.Geometry) (string, error) {
	raw, err := json.Marshal(geom)
	if err != nil {
		return "", err
	}

	var gj struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &gj); err != nil {
		return "", err
	}

	switch gj.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(gj.Coordinates, &rings); err != nil {
			return "", err
		}
		return "POLYGON " + wktRings(rings), nil
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(gj.Coordinates, &polys); err != nil {
			return "", err
		}
		parts := make([]string, len(polys))
		for i, rings := range polys {
			parts[i] = wktRings(rings)
		}
		return "MULTIPOLYGON (" + strings.Join(parts, ", ") + ")", nil
	}
	return "", fmt.Errorf("unsupported geometry type '%s'", gj.Type)
}

func wktRings(rings [][][]float64) string {
	parts := make([]string, len(rings))
	for i, ring := range rings {
		coords := make([]string, len(ring))
		for j, pt := range ring {
			coords[j] = strconv.FormatFloat(pt[0], 'f', -1, 64) + " " +
				strconv.FormatFloat(pt[1], 'f', -1, 64)
		}
		parts[i] = "(" + strings.Join(coords, ", ") + ")"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func spatialRefFromCRS(crs string) (*godal.SpatialRef, error) {
	if !strings.HasPrefix(strings.ToUpper(crs), "EPSG:") {
		return nil, &utils.ConfigurationError{
			Reason: fmt.Sprintf("unsupported CRS '%s', expected EPSG:<code>", crs)}
	}
	code, err := strconv.Atoi(crs[5:])
	if err != nil {
		return nil, &utils.ConfigurationError{Reason: fmt.Sprintf("invalid EPSG code in '%s'", crs)}
	}
	return godal.NewSpatialRefFromEPSG(code)
}
