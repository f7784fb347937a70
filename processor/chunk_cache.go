package processor

import (
	"crypto/md5"
	"fmt"
	"log"
	"reflect"
	"strings"
	"unsafe"

	"github.com/nci/gomemcache/memcache"
)

const sizeofFloat64 = 8

// ChunkCache memoizes finished chunks in memcached keyed by the full
// request geometry, so repeated cube builds over the same view reuse
// the expensive warp and merge work. A nil client disables caching.
type ChunkCache struct {
	mc      *memcache.Client
	Verbose bool
}

func NewChunkCache(uri string) *ChunkCache {
	if len(uri) == 0 {
		return &ChunkCache{}
	}
	return &ChunkCache{mc: memcache.New(uri)}
}

func (c *ChunkCache) key(req *ChunkRequest) string {
	view := req.View
	comps := []string{
		req.Collection.Name,
		view.CRS,
		fmt.Sprintf("%f,%f,%f,%f", view.Left, view.Bottom, view.Right, view.Top),
		fmt.Sprintf("%f,%f", view.XRes, view.YRes),
		view.StartTime.Format("2006-01-02T15:04:05"),
		view.EndTime.Format("2006-01-02T15:04:05"),
		view.TimeGen,
		view.Step.String(),
		view.Resampling,
		view.Aggregation,
		strings.Join(req.NameSpaces, ","),
		fmt.Sprintf("%d:%d,%d,%d,%d,%d,%d", req.Descriptor.ID,
			req.Descriptor.TOff, req.Descriptor.NT,
			req.Descriptor.YOff, req.Descriptor.NY,
			req.Descriptor.XOff, req.Descriptor.NX),
	}
	if req.Mask != nil {
		comps = append(comps, fmt.Sprintf("%s:%v:%v", req.Mask.ID, req.Mask.Values, req.Mask.Inclusive))
	}
	return fmt.Sprintf("cube_chunk_%x", md5.Sum([]byte(strings.Join(comps, "|"))))
}

func (c *ChunkCache) Get(req *ChunkRequest, bands []string) (*CubeChunk, bool) {
	if c == nil || c.mc == nil {
		return nil, false
	}

	item, err := c.mc.Get(c.key(req))
	if err != nil {
		return nil, false
	}

	desc := req.Descriptor
	size := len(bands) * desc.NT * desc.NY * desc.NX
	if len(item.Value) != size*sizeofFloat64 {
		return nil, false
	}

	chunk := &CubeChunk{
		ChunkDescriptor: desc,
		Bands:           bands,
		Data:            make([]float64, size),
	}
	copy(chunk.Data, bytesAsFloat64(item.Value))
	return chunk, true
}

func (c *ChunkCache) Put(req *ChunkRequest, chunk *CubeChunk) {
	if c == nil || c.mc == nil {
		return
	}

	value := make([]byte, len(chunk.Data)*sizeofFloat64)
	copy(value, float64AsBytes(chunk.Data))

	err := c.mc.Set(&memcache.Item{Key: c.key(req), Value: value})
	if err != nil && c.Verbose {
		log.Printf("ChunkCache: set error: %v", err)
	}
}

func bytesAsFloat64(data []byte) []float64 {
	header := *(*reflect.SliceHeader)(unsafe.Pointer(&data))
	header.Len /= sizeofFloat64
	header.Cap /= sizeofFloat64
	return *(*[]float64)(unsafe.Pointer(&header))
}

func float64AsBytes(data []float64) []byte {
	header := *(*reflect.SliceHeader)(unsafe.Pointer(&data))
	header.Len *= sizeofFloat64
	header.Cap *= sizeofFloat64
	return *(*[]byte)(unsafe.Pointer(&header))
}
