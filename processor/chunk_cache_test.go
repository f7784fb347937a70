package processor

import (
	"math"
	"testing"

	"github.com/nci/gocube/collection"
	"github.com/nci/gocube/utils"
)

func TestFloat64BytesRoundTrip(t *testing.T) {
	vals := []float64{1.5, -3.25, math.NaN(), 0}
	raw := float64AsBytes(vals)
	if len(raw) != len(vals)*sizeofFloat64 {
		t.Fatalf("expected %d bytes, actual %d", len(vals)*sizeofFloat64, len(raw))
	}

	back := bytesAsFloat64(raw)
	if len(back) != len(vals) {
		t.Fatalf("expected %d values, actual %d", len(vals), len(back))
	}
	if back[0] != 1.5 || back[1] != -3.25 || back[3] != 0 {
		t.Errorf("round trip corrupted values: %v", back)
	}
	if !math.IsNaN(back[2]) {
		t.Errorf("NaN must survive the round trip, actual %v", back[2])
	}
}

func cacheRequest(chunkID int, aggregation string) *ChunkRequest {
	return &ChunkRequest{
		CubeRequest: &CubeRequest{
			ConfigPayLoad: ConfigPayLoad{NameSpaces: []string{"red"}},
			Collection:    &collection.Collection{Name: "test"},
			View:          utils.CubeView{CRS: "EPSG:3577", Aggregation: aggregation},
		},
		Descriptor: ChunkDescriptor{ID: chunkID, NT: 1, NY: 2, NX: 2},
	}
}

func TestChunkCacheKey(t *testing.T) {
	cache := NewChunkCache("")

	a := cache.key(cacheRequest(0, "mean"))
	b := cache.key(cacheRequest(0, "mean"))
	if a != b {
		t.Errorf("identical requests must share a key")
	}

	if cache.key(cacheRequest(1, "mean")) == a {
		t.Errorf("different chunks must not share a key")
	}
	if cache.key(cacheRequest(0, "median")) == a {
		t.Errorf("different aggregations must not share a key")
	}

	// same cell count, different window shape
	wide := cacheRequest(0, "mean")
	wide.Descriptor.NY, wide.Descriptor.NX = 1, 4
	if cache.key(wide) == a {
		t.Errorf("chunks with equal cell counts but different shapes must not share a key")
	}

	shifted := cacheRequest(0, "mean")
	shifted.Descriptor.YOff = 2
	if cache.key(shifted) == a {
		t.Errorf("chunks at different offsets must not share a key")
	}
}

func TestChunkCacheDisabled(t *testing.T) {
	var cache *ChunkCache

	if _, ok := cache.Get(cacheRequest(0, "mean"), []string{"red"}); ok {
		t.Errorf("nil cache must miss")
	}
	cache.Put(cacheRequest(0, "mean"), NewEmptyChunk(ChunkDescriptor{NT: 1, NY: 1, NX: 1}, []string{"red"}))

	cache = NewChunkCache("")
	if _, ok := cache.Get(cacheRequest(0, "mean"), []string{"red"}); ok {
		t.Errorf("clientless cache must miss")
	}
}
