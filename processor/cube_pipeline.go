package processor

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/context"

	"github.com/nci/gocube/utils"
)

const DefaultReadConcurrency = 4

// CubePipeline materializes cube requests chunk by chunk over a fixed
// worker pool. Each chunk runs its own indexer, warper and aggregator
// stages wired by channels; a failed chunk leaves its window all-NaN
// unless the request asks to fail fast.
type CubePipeline struct {
	Context         context.Context
	Concurrency     int
	ReadConcurrency int
	TemplateDir     string
	Cache           *ChunkCache
	Verbose         bool
}

func NewCubePipeline(ctx context.Context, concurrency int) *CubePipeline {
	registerDrivers()
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &CubePipeline{
		Context:         ctx,
		Concurrency:     concurrency,
		ReadConcurrency: DefaultReadConcurrency,
	}
}

func (p *CubePipeline) nameSpaces(req *CubeRequest) []string {
	if len(req.NameSpaces) > 0 {
		return req.NameSpaces
	}
	return req.Collection.BandNames
}

// Process runs one cube request to completion and assembles the dense
// result. The view must already be snapped and validated.
func (p *CubePipeline) Process(req *CubeRequest) (*Cube, error) {
	if req.Collection == nil || len(req.Collection.Images) == 0 {
		return nil, &utils.EmptyCollectionError{}
	}
	if !ValidAggregation(req.View.Aggregation) {
		return nil, &utils.ConfigurationError{
			Reason: fmt.Sprintf("unknown aggregation method '%s'", req.View.Aggregation)}
	}
	if err := req.View.Validate(); err != nil {
		return nil, err
	}
	for _, ns := range req.NameSpaces {
		if _, ok := req.Collection.BandTypes[ns]; !ok {
			return nil, &utils.ConfigurationError{
				Reason: fmt.Sprintf("band '%s' not in collection '%s'", ns, req.Collection.Name)}
		}
	}

	t0 := time.Now()
	if req.MetricsCollector != nil {
		req.MetricsCollector.Info.ReqTime = t0.Format(utils.ISOFormat)
		req.MetricsCollector.Info.Collection = req.Collection.Name
		req.MetricsCollector.Info.Indexer.Collection = req.Collection.Name
	}

	var composer *VRTComposer
	if len(p.TemplateDir) > 0 {
		var err error
		composer, err = NewVRTComposer(p.TemplateDir, DefaultVRTTemplate)
		if err != nil {
			return nil, err
		}
	}

	chunks := PlanChunks(req.View, req.ChunkShape)
	bands := p.nameSpaces(req)
	cube := NewEmptyCube(req.View, bands)

	ctx, cancel := context.WithCancel(p.Context)
	defer cancel()

	var mu sync.Mutex
	var failures []ChunkFailure

	cLimiter := NewConcLimiter(p.Concurrency)
	for _, desc := range chunks {
		select {
		case <-ctx.Done():
		default:
			cLimiter.Increase()
			go func(desc ChunkDescriptor) {
				defer cLimiter.Decrease()
				chunk, err := p.processChunk(ctx, req, desc, composer, bands)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, ChunkFailure{ChunkID: desc.ID, Err: err})
					if req.FailFast {
						cancel()
					}
					return
				}
				cube.Blit(chunk)
			}(desc)
		}
	}
	cLimiter.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].ChunkID < failures[j].ChunkID })
	cube.Failures = failures

	if req.MetricsCollector != nil {
		req.MetricsCollector.Info.ReqDuration = time.Since(t0)
		req.MetricsCollector.Info.Chunks.NumChunks = len(chunks)
		req.MetricsCollector.Info.Chunks.FailedChunks = len(failures)
	}

	if req.FailFast && len(failures) > 0 {
		return nil, failures[0].Err
	}
	return cube, nil
}

func (p *CubePipeline) processChunk(ctx context.Context, req *CubeRequest, desc ChunkDescriptor, composer *VRTComposer, bands []string) (*CubeChunk, error) {
	chunkReq := &ChunkRequest{CubeRequest: req, Descriptor: desc, Composer: composer}

	if chunk, ok := p.Cache.Get(chunkReq, bands); ok {
		if req.MetricsCollector != nil {
			atomic.AddInt64(&req.MetricsCollector.Info.Chunks.CacheHits, 1)
		}
		return chunk, nil
	}

	errChan := make(chan error, 100)

	indexer := NewCubeIndexer(ctx, errChan)
	warper := NewRasterWarper(ctx, chunkReq, errChan)
	warper.In = indexer.Out
	merger := NewChunkAggregator(ctx, chunkReq, errChan)
	merger.In = warper.Out

	readConc := p.ReadConcurrency
	if readConc <= 0 {
		readConc = DefaultReadConcurrency
	}

	go indexer.Run()
	go warper.Run(NewConcLimiter(readConc))
	go merger.Run()

	indexer.In <- chunkReq
	close(indexer.In)

	select {
	case err := <-errChan:
		return nil, err
	case chunk, ok := <-merger.Out:
		if !ok {
			select {
			case err := <-errChan:
				return nil, err
			default:
				return nil, fmt.Errorf("chunk %d: pipeline aborted", desc.ID)
			}
		}
		// a stage error may coexist with a merged chunk when some
		// granules failed after others already landed
		select {
		case err := <-errChan:
			return nil, err
		default:
		}

		p.Cache.Put(chunkReq, chunk)
		return chunk, nil
	}
}
