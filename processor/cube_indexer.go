package processor

import (
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/net/context"

	"github.com/nci/gocube/collection"
)

// ChunkRequest binds one chunk descriptor to its parent cube request.
type ChunkRequest struct {
	*CubeRequest
	Descriptor ChunkDescriptor
	Composer   *VRTComposer
}

// CubeIndexer resolves a chunk against the collection index and emits
// one granule per contributing read. Metadata only, no pixel I/O.
type CubeIndexer struct {
	Context context.Context
	In      chan *ChunkRequest
	Out     chan *CubeGranule
	Error   chan error
}

func NewCubeIndexer(ctx context.Context, errChan chan error) *CubeIndexer {
	return &CubeIndexer{
		Context: ctx,
		In:      make(chan *ChunkRequest, 100),
		Out:     make(chan *CubeGranule, 100),
		Error:   errChan,
	}
}

func (p *CubeIndexer) Run() {
	defer close(p.Out)
	for req := range p.In {
		if !p.indexChunk(req) {
			return
		}
	}
}

func (p *CubeIndexer) indexChunk(req *ChunkRequest) bool {
	nameSpaces := req.NameSpaces
	if len(nameSpaces) == 0 {
		nameSpaces = req.Collection.BandNames
	}

	// The mask band rides along with the data bands so the merger can
	// drop masked cells before aggregation.
	readSet := nameSpaces
	if req.Mask != nil && len(req.Mask.ID) > 0 {
		hasMask := false
		for _, ns := range readSet {
			if ns == req.Mask.ID {
				hasMask = true
				break
			}
		}
		if !hasMask {
			readSet = append(append([]string{}, readSet...), req.Mask.ID)
		}
	}

	for sliceIdx, sliceStart := range req.Descriptor.Times {
		sliceEnd := req.View.SliceEnd(sliceStart)
		images := req.Collection.Intersecting(req.Descriptor.BBox, sliceStart, sliceEnd)

		for _, img := range images {
			select {
			case <-p.Context.Done():
				p.Error <- fmt.Errorf("Indexer: context has been cancel: %v", p.Context.Err())
				return false
			default:
			}

			grans := p.composeGranules(req, img, readSet, sliceIdx)
			if len(grans) == 0 {
				continue
			}

			if req.MetricsCollector != nil {
				atomic.AddInt64(&req.MetricsCollector.Info.Indexer.NumImages, 1)
				atomic.AddInt64(&req.MetricsCollector.Info.Indexer.NumGranules, int64(len(grans)))
			}

			for _, gran := range grans {
				p.Out <- gran
			}
		}
	}

	return true
}

// composeGranules turns one image into read tasks for the bands it
// offers. Co-registered assets collapse into a single VRT granule when
// a composer is available.
func (p *CubeIndexer) composeGranules(req *ChunkRequest, img *collection.Image, readSet []string, sliceIdx int) []*CubeGranule {
	var present []string
	for _, ns := range readSet {
		if _, ok := img.Bands[ns]; ok {
			present = append(present, ns)
		}
	}
	if len(present) == 0 {
		return nil
	}

	if req.Composer != nil && len(present) > 1 {
		first := img.Bands[present[0]]
		coRegistered := true
		for _, ns := range present[1:] {
			if !first.SameGeometry(img.Bands[ns]) {
				coRegistered = false
				break
			}
		}

		if coRegistered {
			vrt, err := req.Composer.Compose(img, present)
			if err == nil {
				gran := &CubeGranule{
					VRT:        vrt,
					Path:       img.Bands[present[0]].Path,
					NameSpaces: present,
					TimeStamp:  img.TimeStamp,
					SliceIdx:   sliceIdx,
					ImageID:    img.ID,
				}
				for _, ns := range present {
					gran.RasterTypes = append(gran.RasterTypes, img.Bands[ns].RasterType)
					gran.NoDataVals = append(gran.NoDataVals, img.Bands[ns].NoData)
				}
				return []*CubeGranule{gran}
			}
			log.Printf("Indexer: VRT composition failed for %s, reading per band: %v", img.ID, err)
		}
	}

	var grans []*CubeGranule
	for _, ns := range present {
		asset := img.Bands[ns]
		grans = append(grans, &CubeGranule{
			Path:        asset.Path,
			NameSpaces:  []string{ns},
			RasterTypes: []string{asset.RasterType},
			NoDataVals:  []float64{asset.NoData},
			TimeStamp:   img.TimeStamp,
			SliceIdx:    sliceIdx,
			ImageID:     img.ID,
		})
	}
	return grans
}
