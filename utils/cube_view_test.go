package utils

import (
	"testing"
	"time"
)

func TestSnapOutward(t *testing.T) {
	start, _ := time.Parse(ISOFormat, "2020-01-01T00:00:00.000Z")
	end, _ := time.Parse(ISOFormat, "2020-01-25T00:00:00.000Z")

	view := CubeView{
		CRS:       "EPSG:3577",
		XRes:      10,
		YRes:      10,
		Extent:    Extent{Left: 0, Bottom: 0, Right: 95, Top: 95},
		StartTime: start,
		EndTime:   end,
		Step:      10 * 24 * time.Hour,
	}

	snapped, adjs := view.Snap()

	if snapped.Left != 0 || snapped.Bottom != 0 || snapped.Right != 100 || snapped.Top != 100 {
		t.Errorf("expected extent [0 0 100 100], actual %v", snapped.Extent)
	}
	if snapped.Width() != 10 || snapped.Height() != 10 {
		t.Errorf("expected 10x10 grid, actual %dx%d", snapped.Width(), snapped.Height())
	}

	// right, top and time all moved
	if len(adjs) != 3 {
		t.Errorf("expected 3 adjustments, actual %v", adjs)
	}
	for _, adj := range adjs {
		switch adj.Axis {
		case "right":
			if adj.From != 95 || adj.To != 100 {
				t.Errorf("right adjustment wrong: %v", adj)
			}
		case "top":
			if adj.From != 95 || adj.To != 100 {
				t.Errorf("top adjustment wrong: %v", adj)
			}
		case "time":
			expected := start.Add(3 * 10 * 24 * time.Hour)
			if !snapped.EndTime.Equal(expected) {
				t.Errorf("expected end time %v, actual %v", expected, snapped.EndTime)
			}
		default:
			t.Errorf("unexpected adjustment axis %s", adj.Axis)
		}
	}
}

func TestSnapAlreadyAligned(t *testing.T) {
	start, _ := time.Parse(ISOFormat, "2020-01-01T00:00:00.000Z")

	view := CubeView{
		XRes:      25,
		YRes:      25,
		Extent:    Extent{Left: -50, Bottom: 0, Right: 50, Top: 100},
		StartTime: start,
		EndTime:   start.Add(48 * time.Hour),
		Step:      24 * time.Hour,
	}

	snapped, adjs := view.Snap()
	if len(adjs) != 0 {
		t.Errorf("expected no adjustments, actual %v", adjs)
	}
	if snapped.Extent != view.Extent {
		t.Errorf("aligned extent must not move, actual %v", snapped.Extent)
	}
}

func TestValidate(t *testing.T) {
	start, _ := time.Parse(ISOFormat, "2020-01-01T00:00:00.000Z")

	valid := CubeView{
		XRes:      10,
		YRes:      10,
		Extent:    Extent{Left: 0, Bottom: 0, Right: 100, Top: 100},
		StartTime: start,
		EndTime:   start.Add(24 * time.Hour),
		Step:      24 * time.Hour,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid view rejected: %v", err)
	}

	bad := valid
	bad.XRes = 0
	if _, ok := bad.Validate().(*ConfigurationError); !ok {
		t.Errorf("zero cell size must be a ConfigurationError")
	}

	bad = valid
	bad.Extent.Right = -10
	if _, ok := bad.Validate().(*ConfigurationError); !ok {
		t.Errorf("inverted extent must be a ConfigurationError")
	}

	bad = valid
	bad.EndTime = start.Add(-time.Hour)
	if _, ok := bad.Validate().(*ConfigurationError); !ok {
		t.Errorf("inverted time range must be a ConfigurationError")
	}

	bad = valid
	bad.TimeGen = "fortnightly"
	if _, ok := bad.Validate().(*ConfigurationError); !ok {
		t.Errorf("unknown time generator must be a ConfigurationError")
	}

	bad = valid
	bad.Resampling = "cubic_spline_42"
	if _, ok := bad.Validate().(*ConfigurationError); !ok {
		t.Errorf("unknown resampling must be a ConfigurationError")
	}
}

func TestDeriveViewDoesNotMutateBase(t *testing.T) {
	start, _ := time.Parse(ISOFormat, "2020-01-01T00:00:00.000Z")

	base := CubeView{
		XRes:      10,
		YRes:      10,
		Extent:    Extent{Left: 0, Bottom: 0, Right: 100, Top: 100},
		StartTime: start,
		EndTime:   start.Add(24 * time.Hour),
		Step:      24 * time.Hour,
	}

	right := 95.0
	derived, _, err := DeriveView(base, ViewOverrides{Right: &right})
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if derived.Right != 100 {
		t.Errorf("expected derived right snapped to 100, actual %v", derived.Right)
	}
	if base.Right != 100 {
		t.Errorf("base view mutated: %v", base.Extent)
	}
}

func TestTimeSlices(t *testing.T) {
	start, _ := time.Parse(ISOFormat, "2020-01-01T00:00:00.000Z")

	view := CubeView{
		StartTime: start,
		EndTime:   start.AddDate(0, 3, 0),
		TimeGen:   "monthly",
	}
	slices := view.TimeSlices()
	if len(slices) != 3 {
		t.Fatalf("expected 3 monthly slices, actual %d", len(slices))
	}
	if !slices[1].Equal(start.AddDate(0, 1, 0)) {
		t.Errorf("wrong second slice: %v", slices[1])
	}
	if !view.SliceEnd(slices[2]).Equal(start.AddDate(0, 3, 0)) {
		t.Errorf("wrong end of last slice: %v", view.SliceEnd(slices[2]))
	}

	// degenerate window still yields one slice
	view = CubeView{StartTime: start, EndTime: start, Step: 24 * time.Hour}
	if len(view.TimeSlices()) != 1 {
		t.Errorf("empty window must yield a single slice")
	}
}
