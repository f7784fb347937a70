package processor

import (
	"math"
	"time"

	"github.com/nci/gocube/collection"
	"github.com/nci/gocube/metrics"
	"github.com/nci/gocube/utils"
)

// ConfigPayLoad carries the per-request knobs shared by every pipeline
// stage.
type ConfigPayLoad struct {
	NameSpaces       []string
	Mask             *utils.Mask
	MaxRetries       int
	RetryBaseDelay   time.Duration
	FailFast         bool
	TempDir          string
	MetricsCollector *metrics.MetricsCollector
}

// ChunkShape is the partition unit over the (t, y, x) axes. Bands are
// never split.
type ChunkShape struct {
	NT int
	NY int
	NX int
}

const DefaultChunkT = 4
const DefaultChunkY = 256
const DefaultChunkX = 256

func (s ChunkShape) withDefaults() ChunkShape {
	if s.NT <= 0 {
		s.NT = DefaultChunkT
	}
	if s.NY <= 0 {
		s.NY = DefaultChunkY
	}
	if s.NX <= 0 {
		s.NX = DefaultChunkX
	}
	return s
}

// CubeRequest is one cube materialization job over a resolved
// collection and a snapped view.
type CubeRequest struct {
	ConfigPayLoad
	Collection *collection.Collection
	View       utils.CubeView
	ChunkShape ChunkShape
}

// ChunkDescriptor addresses one chunk inside the cube grid. Offsets
// are in cells from the cube origin, the origin being the top-left
// corner of the first time slice. Trailing chunks are smaller than the
// requested shape when the axes do not divide evenly.
type ChunkDescriptor struct {
	ID   int
	TOff int
	NT   int
	YOff int
	NY   int
	XOff int
	NX   int

	// BBox is the chunk window in view CRS coordinates.
	BBox utils.Extent

	// Times holds the slice start times covered by this chunk.
	Times []time.Time
}

// CubeGranule is one read task: a subset of bands from a single image
// contributing to a single time slice of a chunk. When VRT is set it
// is a composed document stacking the bands listed in NameSpaces in
// order; otherwise Path names a raster whose first band is read.
type CubeGranule struct {
	Path        string
	VRT         string
	NameSpaces  []string
	RasterTypes []string
	NoDataVals  []float64
	TimeStamp   time.Time
	SliceIdx    int
	ImageID     string
}

// FlexRaster is one warped band plane aligned with its chunk window.
// Data holds the raw typed cells of the source, not yet widened.
type FlexRaster struct {
	Data      []byte
	Height    int
	Width     int
	DataType  string
	NoData    float64
	NameSpace string
	TimeStamp time.Time
	SliceIdx  int
	ImageID   string
}

// CubeChunk is one materialized chunk. Data is band-major over
// (band, slice, y, x) with NaN as the only nodata sentinel.
type CubeChunk struct {
	ChunkDescriptor
	Bands []string
	Data  []float64
}

func (c *CubeChunk) Offset(b, t, y, x int) int {
	return ((b*c.NT+t)*c.NY+y)*c.NX + x
}

// NewEmptyChunk returns an all-NaN chunk for the descriptor.
func NewEmptyChunk(desc ChunkDescriptor, bands []string) *CubeChunk {
	chunk := &CubeChunk{
		ChunkDescriptor: desc,
		Bands:           bands,
		Data:            make([]float64, len(bands)*desc.NT*desc.NY*desc.NX),
	}
	nan := math.NaN()
	for i := range chunk.Data {
		chunk.Data[i] = nan
	}
	return chunk
}

type ChunkFailure struct {
	ChunkID int
	Err     error
}

// Cube is the assembled dense result. Failed chunks remain all-NaN and
// are listed in Failures.
type Cube struct {
	View     utils.CubeView
	Bands    []string
	Times    []time.Time
	Height   int
	Width    int
	Data     []float64
	Failures []ChunkFailure
}

func (c *Cube) Offset(b, t, y, x int) int {
	return ((b*len(c.Times)+t)*c.Height+y)*c.Width + x
}

// NewEmptyCube allocates an all-NaN cube for the view.
func NewEmptyCube(view utils.CubeView, bands []string) *Cube {
	times := view.TimeSlices()
	height := view.Height()
	width := view.Width()
	cube := &Cube{
		View:   view,
		Bands:  bands,
		Times:  times,
		Height: height,
		Width:  width,
		Data:   make([]float64, len(bands)*len(times)*height*width),
	}
	nan := math.NaN()
	for i := range cube.Data {
		cube.Data[i] = nan
	}
	return cube
}

// Blit copies a finished chunk into the cube at its offsets.
func (c *Cube) Blit(chunk *CubeChunk) {
	for b := range chunk.Bands {
		for t := 0; t < chunk.NT; t++ {
			for y := 0; y < chunk.NY; y++ {
				src := chunk.Offset(b, t, y, 0)
				dst := c.Offset(b, chunk.TOff+t, chunk.YOff+y, chunk.XOff)
				copy(c.Data[dst:dst+chunk.NX], chunk.Data[src:src+chunk.NX])
			}
		}
	}
}
