package utils

import (
	"math"
	"time"
)

// string used to format Go ISO times
const ISOFormat = "2006-01-02T15:04:05.000Z"

type Extent struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Top    float64 `json:"top"`
}

// SnapAdjustment records one extent coordinate moved outward during
// grid alignment. Snapping is reported, never silent.
type SnapAdjustment struct {
	Axis string  `json:"axis"`
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// CubeView describes the regular target grid a cube is computed on.
// Views are value types: DeriveView copies, nothing mutates in place.
type CubeView struct {
	CRS         string        `json:"crs"`
	XRes        float64       `json:"x_res"`
	YRes        float64       `json:"y_res"`
	Extent      `json:"extent"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Step        time.Duration `json:"step"`
	TimeGen     string        `json:"time_generator"`
	Resampling  string        `json:"resampling"`
	Aggregation string        `json:"aggregation"`
}

// ViewOverrides carries the fields to replace when deriving a new view
// from a base view. Nil fields keep the base value.
type ViewOverrides struct {
	CRS         *string
	XRes        *float64
	YRes        *float64
	Left        *float64
	Right       *float64
	Bottom      *float64
	Top         *float64
	StartTime   *time.Time
	EndTime     *time.Time
	Step        *time.Duration
	TimeGen     *string
	Resampling  *string
	Aggregation *string
}

func (v CubeView) Validate() error {
	if v.XRes <= 0 || v.YRes <= 0 {
		return &ConfigurationError{Reason: "cell size must be strictly positive"}
	}
	if v.Extent.Right <= v.Extent.Left {
		return &ConfigurationError{Reason: "extent right must be greater than left"}
	}
	if v.Extent.Top <= v.Extent.Bottom {
		return &ConfigurationError{Reason: "extent top must be greater than bottom"}
	}
	if v.EndTime.Before(v.StartTime) {
		return &ConfigurationError{Reason: "end time must not precede start time"}
	}
	switch v.TimeGen {
	case "", "regular":
		if v.Step <= 0 {
			return &ConfigurationError{Reason: "time step must be strictly positive"}
		}
	case "monthly", "yearly":
	default:
		return &ConfigurationError{Reason: "unknown time generator: " + v.TimeGen}
	}
	switch v.Resampling {
	case "", "near", "bilinear", "average":
	default:
		return &ConfigurationError{Reason: "unknown resampling method: " + v.Resampling}
	}
	return nil
}

// Snap aligns the spatial extent outward to whole multiples of the cell
// size and the temporal extent outward to whole steps. The extent is
// always expanded, never shrunk.
func (v CubeView) Snap() (CubeView, []SnapAdjustment) {
	var adjs []SnapAdjustment

	snapDown := func(val, res float64) float64 {
		return math.Floor(val/res) * res
	}
	snapUp := func(val, res float64) float64 {
		return math.Ceil(val/res) * res
	}

	if snapped := snapDown(v.Extent.Left, v.XRes); snapped != v.Extent.Left {
		adjs = append(adjs, SnapAdjustment{Axis: "left", From: v.Extent.Left, To: snapped})
		v.Extent.Left = snapped
	}
	if snapped := snapUp(v.Extent.Right, v.XRes); snapped != v.Extent.Right {
		adjs = append(adjs, SnapAdjustment{Axis: "right", From: v.Extent.Right, To: snapped})
		v.Extent.Right = snapped
	}
	if snapped := snapDown(v.Extent.Bottom, v.YRes); snapped != v.Extent.Bottom {
		adjs = append(adjs, SnapAdjustment{Axis: "bottom", From: v.Extent.Bottom, To: snapped})
		v.Extent.Bottom = snapped
	}
	if snapped := snapUp(v.Extent.Top, v.YRes); snapped != v.Extent.Top {
		adjs = append(adjs, SnapAdjustment{Axis: "top", From: v.Extent.Top, To: snapped})
		v.Extent.Top = snapped
	}

	if v.TimeGen == "" || v.TimeGen == "regular" {
		dur := v.EndTime.Sub(v.StartTime)
		steps := dur / v.Step
		if steps*v.Step < dur {
			steps++
		}
		if steps == 0 {
			steps = 1
		}
		end := v.StartTime.Add(steps * v.Step)
		if !end.Equal(v.EndTime) {
			adjs = append(adjs, SnapAdjustment{Axis: "time",
				From: float64(v.EndTime.Unix()), To: float64(end.Unix())})
			v.EndTime = end
		}
	}

	return v, adjs
}

// DeriveView produces a new validated, snapped view from a base view
// and a set of overrides. The base view is left untouched.
func DeriveView(base CubeView, o ViewOverrides) (CubeView, []SnapAdjustment, error) {
	v := base
	if o.CRS != nil {
		v.CRS = *o.CRS
	}
	if o.XRes != nil {
		v.XRes = *o.XRes
	}
	if o.YRes != nil {
		v.YRes = *o.YRes
	}
	if o.Left != nil {
		v.Extent.Left = *o.Left
	}
	if o.Right != nil {
		v.Extent.Right = *o.Right
	}
	if o.Bottom != nil {
		v.Extent.Bottom = *o.Bottom
	}
	if o.Top != nil {
		v.Extent.Top = *o.Top
	}
	if o.StartTime != nil {
		v.StartTime = *o.StartTime
	}
	if o.EndTime != nil {
		v.EndTime = *o.EndTime
	}
	if o.Step != nil {
		v.Step = *o.Step
	}
	if o.TimeGen != nil {
		v.TimeGen = *o.TimeGen
	}
	if o.Resampling != nil {
		v.Resampling = *o.Resampling
	}
	if o.Aggregation != nil {
		v.Aggregation = *o.Aggregation
	}

	if err := v.Validate(); err != nil {
		return CubeView{}, nil, err
	}
	snapped, adjs := v.Snap()
	return snapped, adjs, nil
}

func (v CubeView) Width() int {
	return int(math.Round((v.Extent.Right - v.Extent.Left) / v.XRes))
}

func (v CubeView) Height() int {
	return int(math.Round((v.Extent.Top - v.Extent.Bottom) / v.YRes))
}

// TimeSlices returns the start of each target period.
func (v CubeView) TimeSlices() []time.Time {
	var slices []time.Time
	switch v.TimeGen {
	case "monthly":
		for t := v.StartTime; t.Before(v.EndTime); t = t.AddDate(0, 1, 0) {
			slices = append(slices, t)
		}
	case "yearly":
		for t := v.StartTime; t.Before(v.EndTime); t = t.AddDate(1, 0, 0) {
			slices = append(slices, t)
		}
	default:
		for t := v.StartTime; t.Before(v.EndTime); t = t.Add(v.Step) {
			slices = append(slices, t)
		}
	}
	if len(slices) == 0 {
		slices = append(slices, v.StartTime)
	}
	return slices
}

// SliceEnd returns the exclusive end of the period starting at t.
func (v CubeView) SliceEnd(t time.Time) time.Time {
	switch v.TimeGen {
	case "monthly":
		return t.AddDate(0, 1, 0)
	case "yearly":
		return t.AddDate(1, 0, 0)
	default:
		return t.Add(v.Step)
	}
}

// Geotransform returns the GDAL-style affine transform of the view grid.
func (v CubeView) Geotransform() [6]float64 {
	return [6]float64{v.Extent.Left, v.XRes, 0, v.Extent.Top, 0, -v.YRes}
}
