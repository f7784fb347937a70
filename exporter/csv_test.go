package exporter

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/nci/gocube/processor"
	"github.com/nci/gocube/utils"
)

func testCube(t *testing.T, bands []string, nt, h, w int, vals []float64) *processor.Cube {
	start, err := time.Parse(utils.ISOFormat, "2020-01-01T00:00:00.000Z")
	if err != nil {
		t.Fatalf("bad test timestamp: %v", err)
	}

	times := make([]time.Time, nt)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * 24 * time.Hour)
	}

	if len(vals) != len(bands)*nt*h*w {
		t.Fatalf("test cube needs %d values, got %d", len(bands)*nt*h*w, len(vals))
	}

	return &processor.Cube{
		View: utils.CubeView{
			CRS:       "EPSG:3577",
			XRes:      10,
			YRes:      10,
			Extent:    utils.Extent{Left: 0, Bottom: 0, Right: float64(w) * 10, Top: float64(h) * 10},
			StartTime: start,
			EndTime:   start.Add(time.Duration(nt) * 24 * time.Hour),
			Step:      24 * time.Hour,
		},
		Bands:  bands,
		Times:  times,
		Height: h,
		Width:  w,
		Data:   vals,
	}
}

func TestWriteCSV(t *testing.T) {
	nan := math.NaN()
	cube := testCube(t, []string{"red", "nir"}, 2, 1, 2, []float64{
		10, 20, // red, slice 0
		nan, nan, // red, slice 1
		1, 3, // nir, slice 0
		5, nan, // nir, slice 1
	})

	var buf strings.Builder
	if err := WriteCSV(cube, &buf); err != nil {
		t.Fatalf("csv failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, actual %d lines", len(lines))
	}
	if lines[0] != "date,red,nir" {
		t.Errorf("wrong header: %s", lines[0])
	}
	if lines[1] != "2020-01-01T00:00:00.000Z,15,2" {
		t.Errorf("wrong first row: %s", lines[1])
	}
	// red has no valid cell in the second slice so its field stays empty
	if lines[2] != "2020-01-02T00:00:00.000Z,,5" {
		t.Errorf("wrong second row: %s", lines[2])
	}
}
