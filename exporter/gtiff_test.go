package exporter

import (
	"math"
	"testing"
)

func TestGTiffRoundTrip(t *testing.T) {
	nan := math.NaN()
	cube := testCube(t, []string{"red", "nir"}, 2, 2, 2, []float64{
		1, 2, 3, 4, // red, slice 0
		5, 6, 7, 8, // red, slice 1
		10, nan, 30, 40, // nir, slice 0
		50, 60, 70, 80, // nir, slice 1
	})

	paths, err := WriteGTiff(cube, t.TempDir(), "cube")
	if err != nil {
		t.Fatalf("gtiff write failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected one file per time slice, actual %d", len(paths))
	}

	bands, w, h, err := ReadGTiff(paths[0])
	if err != nil {
		t.Fatalf("gtiff read failed: %v", err)
	}
	if w != 2 || h != 2 || len(bands) != 2 {
		t.Fatalf("wrong shape: %d bands %dx%d", len(bands), w, h)
	}

	for i, want := range []float64{1, 2, 3, 4} {
		if bands[0][i] != want {
			t.Errorf("red cell %d: expected %v, actual %v", i, want, bands[0][i])
		}
	}
	if bands[1][0] != 10 || bands[1][2] != 30 || bands[1][3] != 40 {
		t.Errorf("nir values corrupted: %v", bands[1])
	}
	if !math.IsNaN(bands[1][1]) {
		t.Errorf("nodata cell must come back NaN, actual %v", bands[1][1])
	}
}
