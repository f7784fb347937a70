package processor

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/airbusgeo/godal"
	"golang.org/x/net/context"

	"github.com/nci/gocube/collection"
	"github.com/nci/gocube/utils"
)

// writeTestTiff creates a single-band Byte GTiff on the EPSG:4326 grid
// with every cell set to fill and 0 as nodata. Skips the test when the
// local GDAL build cannot provide the driver or the spatial reference.
func writeTestTiff(t *testing.T, path string, fill byte, originX, originY float64, width, height int, res float64) {
	registerDrivers()

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, width, height)
	if err != nil {
		t.Skipf("GTiff driver unavailable: %v", err)
	}

	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		t.Skipf("EPSG:4326 unavailable: %v", err)
	}
	defer sr.Close()

	if err := ds.SetSpatialRef(sr); err != nil {
		t.Fatalf("set projection failed: %v", err)
	}
	if err := ds.SetGeoTransform([6]float64{originX, res, 0, originY, 0, -res}); err != nil {
		t.Fatalf("set geotransform failed: %v", err)
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(0); err != nil {
		t.Fatalf("set nodata failed: %v", err)
	}

	buf := make([]byte, width*height)
	for i := range buf {
		buf[i] = fill
	}
	if err := band.Write(0, 0, buf, width, height); err != nil {
		t.Fatalf("band write failed: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func pipelineImage(id, path string, stamp time.Time, bbox utils.Extent) *collection.Image {
	return &collection.Image{
		ID:        id,
		TimeStamp: stamp,
		Polygon:   collection.BBox2WKT(bbox),
		CRS:       "EPSG:4326",
		Bands: map[string]*collection.BandAsset{
			"red": {Path: path, RasterType: "Byte", NoData: 0},
		},
	}
}

func pipelineView(aggregation string, start time.Time) utils.CubeView {
	return utils.CubeView{
		CRS:         "EPSG:4326",
		XRes:        10,
		YRes:        10,
		Extent:      utils.Extent{Left: 0, Bottom: 0, Right: 20, Top: 20},
		StartTime:   start,
		EndTime:     start.Add(24 * time.Hour),
		Step:        24 * time.Hour,
		Resampling:  "near",
		Aggregation: aggregation,
	}
}

// Two images covering disjoint halves of the extent must each fill
// their own half, with no interference between them.
func TestPipelineDisjointHalves(t *testing.T) {
	dir := t.TempDir()
	leftPath := filepath.Join(dir, "left.tif")
	rightPath := filepath.Join(dir, "right.tif")
	writeTestTiff(t, leftPath, 1, 0, 20, 1, 2, 10)
	writeTestTiff(t, rightPath, 2, 10, 20, 1, 2, 10)

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	stamp := start.Add(time.Hour)
	coll := &collection.Collection{
		Name: "test",
		Images: []*collection.Image{
			pipelineImage("left", leftPath, stamp, utils.Extent{Left: 0, Bottom: 0, Right: 10, Top: 20}),
			pipelineImage("right", rightPath, stamp, utils.Extent{Left: 10, Bottom: 0, Right: 20, Top: 20}),
		},
		BandNames: []string{"red"},
		BandTypes: map[string]string{"red": "Byte"},
	}

	pipeline := NewCubePipeline(context.Background(), 2)
	cube, err := pipeline.Process(&CubeRequest{
		ConfigPayLoad: ConfigPayLoad{NameSpaces: []string{"red"}},
		Collection:    coll,
		View:          pipelineView("first", start),
		ChunkShape:    ChunkShape{NT: 1, NY: 2, NX: 2},
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if len(cube.Failures) != 0 {
		t.Fatalf("unexpected chunk failures: %v", cube.Failures)
	}
	if cube.Height != 2 || cube.Width != 2 || len(cube.Times) != 1 {
		t.Fatalf("wrong cube shape: %dx%d, %d slices", cube.Height, cube.Width, len(cube.Times))
	}

	want := []float64{1, 2, 1, 2}
	for i, w := range want {
		if cube.Data[i] != w {
			t.Errorf("cell %d: expected %v, actual %v", i, w, cube.Data[i])
		}
	}
}

// Rebuilding the same request must produce a bit-identical cube even
// with overlapping images and a concurrent worker pool.
func TestPipelineRebuildIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	leftPath := filepath.Join(dir, "left.tif")
	rightPath := filepath.Join(dir, "right.tif")
	fullPath := filepath.Join(dir, "full.tif")
	writeTestTiff(t, leftPath, 1, 0, 20, 1, 2, 10)
	writeTestTiff(t, rightPath, 2, 10, 20, 1, 2, 10)
	writeTestTiff(t, fullPath, 3, 0, 20, 2, 2, 10)

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	coll := &collection.Collection{
		Name: "test",
		Images: []*collection.Image{
			pipelineImage("left", leftPath, start.Add(time.Hour), utils.Extent{Left: 0, Bottom: 0, Right: 10, Top: 20}),
			pipelineImage("right", rightPath, start.Add(time.Hour), utils.Extent{Left: 10, Bottom: 0, Right: 20, Top: 20}),
			pipelineImage("full", fullPath, start.Add(12*time.Hour), utils.Extent{Left: 0, Bottom: 0, Right: 20, Top: 20}),
		},
		BandNames: []string{"red"},
		BandTypes: map[string]string{"red": "Byte"},
	}

	build := func() *Cube {
		pipeline := NewCubePipeline(context.Background(), 2)
		cube, err := pipeline.Process(&CubeRequest{
			ConfigPayLoad: ConfigPayLoad{NameSpaces: []string{"red"}},
			Collection:    coll,
			View:          pipelineView("mean", start),
			ChunkShape:    ChunkShape{NT: 1, NY: 2, NX: 2},
		})
		if err != nil {
			t.Fatalf("process failed: %v", err)
		}
		if len(cube.Failures) != 0 {
			t.Fatalf("unexpected chunk failures: %v", cube.Failures)
		}
		return cube
	}

	first := build()
	second := build()

	want := []float64{2, 2.5, 2, 2.5}
	for i, w := range want {
		if first.Data[i] != w {
			t.Errorf("cell %d: expected %v, actual %v", i, w, first.Data[i])
		}
	}

	if len(first.Data) != len(second.Data) {
		t.Fatalf("rebuild changed the cube size: %d vs %d", len(first.Data), len(second.Data))
	}
	for i := range first.Data {
		if math.Float64bits(first.Data[i]) != math.Float64bits(second.Data[i]) {
			t.Errorf("cell %d differs between rebuilds: %v vs %v", i, first.Data[i], second.Data[i])
		}
	}
}
