package operator

import (
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/net/context"

	"github.com/nci/gocube/processor"
	"github.com/nci/gocube/utils"
)

// Reducer folds one series of cell values into a fixed number of
// output values. OutputLength declares how many values every Reduce
// call returns, regardless of input content, all-NaN series included.
// Returning any other number of values is a contract violation, never
// a silent truncation or padding.
type Reducer interface {
	Name() string
	OutputLength() int
	Reduce(series []float64) ([]float64, error)
}

func reduceSeries(r Reducer, series []float64) ([]float64, error) {
	out, err := r.Reduce(series)
	if err != nil {
		return nil, err
	}
	if len(out) != r.OutputLength() {
		return nil, &utils.ReducerContractViolationError{Expected: r.OutputLength(), Actual: len(out)}
	}
	return out, nil
}

type statReducer struct {
	name string
}

// StatReducer returns a single-output reducer computing one of the
// builtin statistics over the valid values of a series. An all-NaN
// series reduces to NaN, except count which reduces to zero.
func StatReducer(name string) (Reducer, error) {
	switch name {
	case "first", "last", "min", "max", "mean", "median", "count", "sum", "var", "sd":
		return &statReducer{name: name}, nil
	}
	return nil, &utils.ConfigurationError{Reason: fmt.Sprintf("unknown reducer '%s'", name)}
}

func (r *statReducer) Name() string { return r.name }

func (r *statReducer) OutputLength() int { return 1 }

func (r *statReducer) Reduce(series []float64) ([]float64, error) {
	valid := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}

	if r.name == "count" {
		return []float64{float64(len(valid))}, nil
	}
	if len(valid) == 0 {
		return []float64{math.NaN()}, nil
	}

	switch r.name {
	case "first":
		return []float64{valid[0]}, nil
	case "last":
		return []float64{valid[len(valid)-1]}, nil
	case "min":
		m := valid[0]
		for _, v := range valid[1:] {
			if v < m {
				m = v
			}
		}
		return []float64{m}, nil
	case "max":
		m := valid[0]
		for _, v := range valid[1:] {
			if v > m {
				m = v
			}
		}
		return []float64{m}, nil
	case "sum", "mean":
		s := 0.0
		for _, v := range valid {
			s += v
		}
		if r.name == "mean" {
			s /= float64(len(valid))
		}
		return []float64{s}, nil
	case "var", "sd":
		s, sq := 0.0, 0.0
		for _, v := range valid {
			s += v
			sq += v * v
		}
		c := float64(len(valid))
		mean := s / c
		variance := sq/c - mean*mean
		if variance < 0 {
			variance = 0
		}
		if r.name == "sd" {
			return []float64{math.Sqrt(variance)}, nil
		}
		return []float64{variance}, nil
	case "median":
		sort.Float64s(valid)
		mid := len(valid) / 2
		if len(valid)%2 == 1 {
			return []float64{valid[mid]}, nil
		}
		return []float64{0.5 * (valid[mid-1] + valid[mid])}, nil
	}
	return nil, fmt.Errorf("unknown reducer '%s'", r.name)
}

// ReduceTimeNode collapses the time axis to the reducer's declared
// number of output slices per band.
type ReduceTimeNode struct {
	input   Node
	reducer Reducer
}

func (g *Graph) ReduceTime(input Node, reducer Reducer) Node {
	return g.add(&ReduceTimeNode{input: input, reducer: reducer})
}

func (n *ReduceTimeNode) Label() string {
	return fmt.Sprintf("reduce_time(%s)", n.reducer.Name())
}

func (n *ReduceTimeNode) Inputs() []Node { return []Node{n.input} }

func (n *ReduceTimeNode) Compute(ctx context.Context, inputs []*processor.Cube) (*processor.Cube, error) {
	in := inputs[0]
	nt := len(in.Times)
	size := in.Height * in.Width

	k := n.reducer.OutputLength()
	if k <= 0 {
		return nil, &utils.ConfigurationError{
			Reason: fmt.Sprintf("reducer '%s' declares output length %d", n.reducer.Name(), k)}
	}

	times := make([]time.Time, k)
	for i := range times {
		if i < nt {
			times[i] = in.Times[i]
		} else {
			times[i] = in.View.SliceEnd(times[i-1])
		}
	}

	out := &processor.Cube{
		View:     in.View,
		Bands:    in.Bands,
		Times:    times,
		Height:   in.Height,
		Width:    in.Width,
		Failures: in.Failures,
		Data:     make([]float64, len(in.Bands)*k*size),
	}

	series := make([]float64, nt)
	for b := range in.Bands {
		for c := 0; c < size; c++ {
			for t := 0; t < nt; t++ {
				series[t] = in.Data[(b*nt+t)*size+c]
			}
			vals, err := reduceSeries(n.reducer, series)
			if err != nil {
				return nil, err
			}
			for i, v := range vals {
				out.Data[(b*k+i)*size+c] = v
			}
		}
	}
	return out, nil
}

// ReduceSpaceNode collapses both spatial axes, leaving one cell per
// reducer output value for each band and time slice.
type ReduceSpaceNode struct {
	input   Node
	reducer Reducer
}

func (g *Graph) ReduceSpace(input Node, reducer Reducer) Node {
	return g.add(&ReduceSpaceNode{input: input, reducer: reducer})
}

func (n *ReduceSpaceNode) Label() string {
	return fmt.Sprintf("reduce_space(%s)", n.reducer.Name())
}

func (n *ReduceSpaceNode) Inputs() []Node { return []Node{n.input} }

func (n *ReduceSpaceNode) Compute(ctx context.Context, inputs []*processor.Cube) (*processor.Cube, error) {
	in := inputs[0]
	nt := len(in.Times)
	size := in.Height * in.Width

	k := n.reducer.OutputLength()
	if k <= 0 {
		return nil, &utils.ConfigurationError{
			Reason: fmt.Sprintf("reducer '%s' declares output length %d", n.reducer.Name(), k)}
	}

	out := &processor.Cube{
		View:     in.View,
		Bands:    in.Bands,
		Times:    in.Times,
		Height:   1,
		Width:    k,
		Failures: in.Failures,
		Data:     make([]float64, len(in.Bands)*nt*k),
	}

	series := make([]float64, size)
	for b := range in.Bands {
		for t := 0; t < nt; t++ {
			off := (b*nt + t) * size
			copy(series, in.Data[off:off+size])
			vals, err := reduceSeries(n.reducer, series)
			if err != nil {
				return nil, err
			}
			for i, v := range vals {
				out.Data[(b*nt+t)*k+i] = v
			}
		}
	}
	return out, nil
}

// WindowTimeNode applies a reducer over a centered moving window along
// the time axis. Windows reaching past either end are NaN padded so
// every position sees the same series length. Each window position
// yields one cell, so only single-output reducers fit here.
type WindowTimeNode struct {
	input   Node
	width   int
	reducer Reducer
}

func (g *Graph) WindowTime(input Node, width int, reducer Reducer) (Node, error) {
	if width <= 0 || width%2 == 0 {
		return nil, &utils.ConfigurationError{
			Reason: fmt.Sprintf("window width must be odd and positive, got %d", width)}
	}
	if reducer.OutputLength() != 1 {
		return nil, &utils.ConfigurationError{
			Reason: fmt.Sprintf("window reducer '%s' must declare a single output value, got %d",
				reducer.Name(), reducer.OutputLength())}
	}
	return g.add(&WindowTimeNode{input: input, width: width, reducer: reducer}), nil
}

func (n *WindowTimeNode) Label() string {
	return fmt.Sprintf("window_time(%d, %s)", n.width, n.reducer.Name())
}

func (n *WindowTimeNode) Inputs() []Node { return []Node{n.input} }

func (n *WindowTimeNode) Compute(ctx context.Context, inputs []*processor.Cube) (*processor.Cube, error) {
	in := inputs[0]
	nt := len(in.Times)
	size := in.Height * in.Width
	half := n.width / 2

	out := &processor.Cube{
		View:     in.View,
		Bands:    in.Bands,
		Times:    in.Times,
		Height:   in.Height,
		Width:    in.Width,
		Failures: in.Failures,
		Data:     make([]float64, len(in.Data)),
	}

	series := make([]float64, n.width)
	nan := math.NaN()
	for b := range in.Bands {
		for c := 0; c < size; c++ {
			for t := 0; t < nt; t++ {
				for k := 0; k < n.width; k++ {
					tt := t + k - half
					if tt < 0 || tt >= nt {
						series[k] = nan
						continue
					}
					series[k] = in.Data[(b*nt+tt)*size+c]
				}
				vals, err := reduceSeries(n.reducer, series)
				if err != nil {
					return nil, err
				}
				out.Data[(b*nt+t)*size+c] = vals[0]
			}
		}
	}
	return out, nil
}
