package processor

import (
	"math"
	"sort"

	"golang.org/x/net/context"

	"github.com/nci/gocube/utils"
)

// ValidAggregation reports whether stat names a supported per-slice
// aggregation method.
func ValidAggregation(stat string) bool {
	switch stat {
	case "", "first", "last", "min", "max", "mean", "median", "count", "sum", "var", "sd":
		return true
	}
	return false
}

// aggState accumulates valid observations for one band of one time
// slice. Update is only called with unmasked, non-nodata values, so
// every statistic sees the same observation stream regardless of the
// order granules arrived in.
type aggState struct {
	stat  string
	cnt   []float64
	sum   []float64
	sumsq []float64
	minv  []float64
	maxv  []float64
	vals  [][]float64
	pick  []float64
}

func newAggState(stat string, size int) *aggState {
	if len(stat) == 0 {
		stat = "first"
	}
	s := &aggState{stat: stat, cnt: make([]float64, size)}

	switch stat {
	case "first", "last":
		s.pick = make([]float64, size)
		for i := range s.pick {
			s.pick[i] = math.NaN()
		}
	case "min":
		s.minv = make([]float64, size)
		for i := range s.minv {
			s.minv[i] = math.NaN()
		}
	case "max":
		s.maxv = make([]float64, size)
		for i := range s.maxv {
			s.maxv[i] = math.NaN()
		}
	case "mean", "sum", "var", "sd":
		s.sum = make([]float64, size)
		s.sumsq = make([]float64, size)
	case "median":
		s.vals = make([][]float64, size)
	}
	return s
}

func (s *aggState) Update(idx int, val float64) {
	s.cnt[idx]++
	switch s.stat {
	case "first":
		if math.IsNaN(s.pick[idx]) {
			s.pick[idx] = val
		}
	case "last":
		s.pick[idx] = val
	case "min":
		if math.IsNaN(s.minv[idx]) || val < s.minv[idx] {
			s.minv[idx] = val
		}
	case "max":
		if math.IsNaN(s.maxv[idx]) || val > s.maxv[idx] {
			s.maxv[idx] = val
		}
	case "mean", "sum", "var", "sd":
		s.sum[idx] += val
		s.sumsq[idx] += val * val
	case "median":
		s.vals[idx] = append(s.vals[idx], val)
	}
}

func (s *aggState) Finalize(dst []float64) {
	for i := range dst {
		c := s.cnt[i]
		switch s.stat {
		case "count":
			dst[i] = c
		case "first", "last":
			dst[i] = s.pick[i]
		case "min":
			dst[i] = s.minv[i]
		case "max":
			dst[i] = s.maxv[i]
		case "sum":
			if c > 0 {
				dst[i] = s.sum[i]
			}
		case "mean":
			if c > 0 {
				dst[i] = s.sum[i] / c
			}
		case "var", "sd":
			if c > 0 {
				mean := s.sum[i] / c
				variance := s.sumsq[i]/c - mean*mean
				if variance < 0 {
					variance = 0
				}
				if s.stat == "sd" {
					variance = math.Sqrt(variance)
				}
				dst[i] = variance
			}
		case "median":
			vals := s.vals[i]
			if len(vals) == 0 {
				continue
			}
			sort.Float64s(vals)
			mid := len(vals) / 2
			if len(vals)%2 == 1 {
				dst[i] = vals[mid]
			} else {
				dst[i] = 0.5 * (vals[mid-1] + vals[mid])
			}
		}
	}
}

// ChunkAggregator collects the warped planes of one chunk, applies the
// pixel quality mask and folds overlapping observations of each time
// slice into single cell values. Cells with no valid observation stay
// NaN.
type ChunkAggregator struct {
	Context context.Context
	Request *ChunkRequest
	In      chan *FlexRaster
	Out     chan *CubeChunk
	Error   chan error
}

func NewChunkAggregator(ctx context.Context, req *ChunkRequest, errChan chan error) *ChunkAggregator {
	return &ChunkAggregator{
		Context: ctx,
		Request: req,
		In:      make(chan *FlexRaster, 100),
		Out:     make(chan *CubeChunk, 100),
		Error:   errChan,
	}
}

func (p *ChunkAggregator) nameSpaces() []string {
	if len(p.Request.NameSpaces) > 0 {
		return p.Request.NameSpaces
	}
	return p.Request.Collection.BandNames
}

func (p *ChunkAggregator) Run() {
	defer close(p.Out)

	// The full raster stack of a chunk is buffered before merging so
	// the observation order can be fixed by timestamp, not by arrival.
	groups := make(map[int]map[string][]*FlexRaster)
	for r := range p.In {
		if _, ok := groups[r.SliceIdx]; !ok {
			groups[r.SliceIdx] = make(map[string][]*FlexRaster)
		}
		groups[r.SliceIdx][r.ImageID] = append(groups[r.SliceIdx][r.ImageID], r)
	}

	select {
	case <-p.Context.Done():
		return
	default:
	}

	desc := p.Request.Descriptor
	bands := p.nameSpaces()
	chunk := NewEmptyChunk(desc, bands)
	stat := p.Request.View.Aggregation
	size := desc.NY * desc.NX

	for sliceIdx, obsMap := range groups {
		if sliceIdx < 0 || sliceIdx >= desc.NT {
			continue
		}

		obsKeys := make([]string, 0, len(obsMap))
		for key := range obsMap {
			obsKeys = append(obsKeys, key)
		}
		sort.Slice(obsKeys, func(i, j int) bool {
			ti := obsMap[obsKeys[i]][0].TimeStamp
			tj := obsMap[obsKeys[j]][0].TimeStamp
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return obsKeys[i] < obsKeys[j]
		})

		states := make(map[string]*aggState)
		for _, ns := range bands {
			states[ns] = newAggState(stat, size)
		}

		for _, obsKey := range obsKeys {
			excluded, ok := p.computeMask(obsMap[obsKey])
			if !ok {
				return
			}

			for _, r := range obsMap[obsKey] {
				state, wanted := states[r.NameSpace]
				if !wanted {
					continue
				}

				data, err := utils.BytesToFloat64(r.Data, r.DataType, r.NoData)
				if err != nil {
					p.Error <- err
					return
				}

				for i, val := range data {
					if math.IsNaN(val) {
						continue
					}
					if excluded != nil && excluded[i] {
						continue
					}
					state.Update(i, val)
				}
			}
		}

		for bi, ns := range bands {
			off := chunk.Offset(bi, sliceIdx, 0, 0)
			states[ns].Finalize(chunk.Data[off : off+size])
		}
	}

	p.Out <- chunk
}

// computeMask decodes the mask plane of one observation into a per-cell
// exclusion vector. Mask nodata cells are excluded. Observations
// without a mask plane exclude nothing.
func (p *ChunkAggregator) computeMask(rasters []*FlexRaster) ([]bool, bool) {
	mask := p.Request.Mask
	if mask == nil || len(mask.ID) == 0 {
		return nil, true
	}

	for _, r := range rasters {
		if r.NameSpace != mask.ID {
			continue
		}

		data, err := utils.BytesToFloat64(r.Data, r.DataType, r.NoData)
		if err != nil {
			p.Error <- err
			return nil, false
		}

		excluded := make([]bool, len(data))
		for i, val := range data {
			excluded[i] = math.IsNaN(val) || mask.Excludes(val)
		}
		return excluded, true
	}

	return nil, true
}
