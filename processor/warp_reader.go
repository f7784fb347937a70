package processor

import (
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/airbusgeo/godal"
	"golang.org/x/net/context"

	"github.com/nci/gocube/utils"
)

const DefaultMaxRetries = 3
const DefaultRetryBaseDelay = 200 * time.Millisecond
const maxRetryDelay = 5 * time.Second

var registerDriversOnce sync.Once

func registerDrivers() {
	registerDriversOnce.Do(func() {
		godal.RegisterAll()
	})
}

// RasterWarper reads granules and reprojects them onto the chunk grid.
// Transient open failures are retried with capped exponential backoff
// and surface as ChunkIOError once exhausted. Reprojection failures
// skip the granule with a warning instead of failing the chunk.
type RasterWarper struct {
	Context context.Context
	Request *ChunkRequest
	In      chan *CubeGranule
	Out     chan *FlexRaster
	Error   chan error
}

func NewRasterWarper(ctx context.Context, req *ChunkRequest, errChan chan error) *RasterWarper {
	return &RasterWarper{
		Context: ctx,
		Request: req,
		In:      make(chan *CubeGranule, 100),
		Out:     make(chan *FlexRaster, 100),
		Error:   errChan,
	}
}

func (p *RasterWarper) Run(limiter *ConcLimiter) {
	defer close(p.Out)
	for gran := range p.In {
		limiter.Increase()
		go func(g *CubeGranule) {
			defer limiter.Decrease()
			p.warpGranule(g)
		}(gran)
	}
	limiter.Wait()
}

func (p *RasterWarper) warpGranule(g *CubeGranule) {
	t0 := time.Now()

	path := g.Path
	if len(g.VRT) > 0 {
		tmp, err := os.CreateTemp(p.Request.TempDir, "granule_*.vrt")
		if err == nil {
			_, err = tmp.WriteString(g.VRT)
			tmp.Close()
		}
		if err != nil {
			p.Error <- &utils.ChunkIOError{ChunkID: p.Request.Descriptor.ID, Path: g.Path, Err: err}
			return
		}
		path = tmp.Name()
		defer os.Remove(path)
	}

	ds, err := p.openWithRetries(path)
	if err != nil {
		p.Error <- &utils.ChunkIOError{ChunkID: p.Request.Descriptor.ID, Path: g.Path, Err: err}
		return
	}
	defer ds.Close()

	desc := p.Request.Descriptor
	view := p.Request.View
	resampling := view.Resampling
	if len(resampling) == 0 {
		resampling = "near"
	}

	switches := []string{
		"-t_srs", view.CRS,
		"-te", formatFloat(desc.BBox.Left), formatFloat(desc.BBox.Bottom),
		formatFloat(desc.BBox.Right), formatFloat(desc.BBox.Top),
		"-ts", strconv.Itoa(desc.NX), strconv.Itoa(desc.NY),
		"-r", resampling,
		"-of", "MEM",
	}

	warped, err := godal.Warp("", []*godal.Dataset{ds}, switches)
	if err != nil {
		log.Printf("Warp: skipping granule: %v",
			&utils.ReprojectionError{Path: g.Path, Err: err})
		if p.Request.MetricsCollector != nil {
			atomic.AddInt64(&p.Request.MetricsCollector.Info.Reader.SkippedImages, 1)
		}
		return
	}
	defer warped.Close()

	bands := warped.Bands()
	for i, ns := range g.NameSpaces {
		if i >= len(bands) {
			break
		}

		select {
		case <-p.Context.Done():
			return
		default:
		}

		noData := g.NoDataVals[i]
		if nd, ok := bands[i].NoData(); ok {
			noData = nd
		}

		raw := utils.InitNoDataBytes(g.RasterTypes[i], noData, desc.NX*desc.NY)
		buf, err := utils.TypedSliceFromBytes(raw, g.RasterTypes[i])
		if err != nil {
			p.Error <- &utils.ChunkIOError{ChunkID: desc.ID, Path: g.Path, Err: err}
			return
		}

		if err := bands[i].Read(0, 0, buf, desc.NX, desc.NY); err != nil {
			p.Error <- &utils.ChunkIOError{ChunkID: desc.ID, Path: g.Path, Err: err}
			return
		}

		if p.Request.MetricsCollector != nil {
			atomic.AddInt64(&p.Request.MetricsCollector.Info.Reader.BytesRead, int64(len(raw)))
		}

		p.Out <- &FlexRaster{
			Data:      raw,
			Height:    desc.NY,
			Width:     desc.NX,
			DataType:  g.RasterTypes[i],
			NoData:    noData,
			NameSpace: ns,
			TimeStamp: g.TimeStamp,
			SliceIdx:  g.SliceIdx,
			ImageID:   g.ImageID,
		}
	}

	if p.Request.MetricsCollector != nil {
		atomic.AddInt64(&p.Request.MetricsCollector.Info.Reader.NumGranules, 1)
		atomic.AddInt64((*int64)(&p.Request.MetricsCollector.Info.Reader.Duration), int64(time.Since(t0)))
	}
}

func (p *RasterWarper) openWithRetries(path string) (*godal.Dataset, error) {
	maxRetries := p.Request.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	delay := p.Request.RetryBaseDelay
	if delay <= 0 {
		delay = DefaultRetryBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if p.Request.MetricsCollector != nil {
				atomic.AddInt64(&p.Request.MetricsCollector.Info.Reader.Retries, 1)
			}
			select {
			case <-p.Context.Done():
				return nil, p.Context.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}

		ds, err := godal.Open(path)
		if err == nil {
			return ds, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
