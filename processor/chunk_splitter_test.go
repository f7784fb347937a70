package processor

import (
	"testing"
	"time"

	"github.com/nci/gocube/utils"
)

func testView(t *testing.T, width, height float64, res float64, nSlices int) utils.CubeView {
	start, err := time.Parse(utils.ISOFormat, "2020-01-01T00:00:00.000Z")
	if err != nil {
		t.Fatalf("bad test timestamp: %v", err)
	}
	return utils.CubeView{
		CRS:       "EPSG:3577",
		XRes:      res,
		YRes:      res,
		Extent:    utils.Extent{Left: 0, Bottom: 0, Right: width, Top: height},
		StartTime: start,
		EndTime:   start.Add(time.Duration(nSlices) * 24 * time.Hour),
		Step:      24 * time.Hour,
	}
}

func TestPlanChunksExactCover(t *testing.T) {
	view := testView(t, 100, 100, 10, 2)
	chunks := PlanChunks(view, ChunkShape{NT: 1, NY: 4, NX: 4})

	// 10x10 grid, 4x4 chunks: 3x3 spatial tiles per slice
	if len(chunks) != 2*3*3 {
		t.Fatalf("expected 18 chunks, actual %d", len(chunks))
	}

	covered := make(map[[3]int]int)
	for _, c := range chunks {
		if c.NT <= 0 || c.NY <= 0 || c.NX <= 0 {
			t.Errorf("chunk %d has empty axis: %+v", c.ID, c)
		}
		for dt := 0; dt < c.NT; dt++ {
			for dy := 0; dy < c.NY; dy++ {
				for dx := 0; dx < c.NX; dx++ {
					covered[[3]int{c.TOff + dt, c.YOff + dy, c.XOff + dx}]++
				}
			}
		}
	}

	if len(covered) != 2*10*10 {
		t.Errorf("expected 200 covered cells, actual %d", len(covered))
	}
	for cell, n := range covered {
		if n != 1 {
			t.Errorf("cell %v covered %d times", cell, n)
		}
	}
}

func TestPlanChunksTrailing(t *testing.T) {
	view := testView(t, 100, 100, 10, 3)
	chunks := PlanChunks(view, ChunkShape{NT: 2, NY: 6, NX: 8})

	var lastT, lastY, lastX int
	for _, c := range chunks {
		if c.TOff+c.NT == 3 && c.NT == 1 {
			lastT++
		}
		if c.YOff+c.NY == 10 && c.NY == 4 {
			lastY++
		}
		if c.XOff+c.NX == 10 && c.NX == 2 {
			lastX++
		}
	}
	if lastT == 0 || lastY == 0 || lastX == 0 {
		t.Errorf("trailing chunks must be clipped, t=%d y=%d x=%d", lastT, lastY, lastX)
	}
}

func TestPlanChunksBBox(t *testing.T) {
	view := testView(t, 100, 100, 10, 1)
	chunks := PlanChunks(view, ChunkShape{NT: 1, NY: 5, NX: 5})

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, actual %d", len(chunks))
	}

	// chunk 0 is the top-left window
	c := chunks[0]
	if c.BBox.Left != 0 || c.BBox.Right != 50 || c.BBox.Top != 100 || c.BBox.Bottom != 50 {
		t.Errorf("wrong top-left bbox: %v", c.BBox)
	}

	// chunk 3 is the bottom-right window
	c = chunks[3]
	if c.BBox.Left != 50 || c.BBox.Right != 100 || c.BBox.Top != 50 || c.BBox.Bottom != 0 {
		t.Errorf("wrong bottom-right bbox: %v", c.BBox)
	}
}

func TestPlanChunksDeterministic(t *testing.T) {
	view := testView(t, 70, 30, 10, 2)
	a := PlanChunks(view, ChunkShape{NT: 1, NY: 2, NX: 3})
	b := PlanChunks(view, ChunkShape{NT: 1, NY: 2, NX: 3})

	if len(a) != len(b) {
		t.Fatalf("partition not deterministic: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].TOff != b[i].TOff || a[i].YOff != b[i].YOff || a[i].XOff != b[i].XOff {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
