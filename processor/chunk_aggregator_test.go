package processor

import (
	"math"
	"testing"
	"time"

	"golang.org/x/net/context"

	"github.com/nci/gocube/utils"
)

func aggRequest(stat string, mask *utils.Mask) *ChunkRequest {
	return &ChunkRequest{
		CubeRequest: &CubeRequest{
			ConfigPayLoad: ConfigPayLoad{
				NameSpaces: []string{"red"},
				Mask:       mask,
			},
			View: utils.CubeView{Aggregation: stat},
		},
		Descriptor: ChunkDescriptor{ID: 0, NT: 1, YOff: 0, NY: 2, XOff: 0, NX: 2},
	}
}

func byteRaster(ns, imageID, ts string, vals []byte) *FlexRaster {
	stamp, _ := time.Parse(utils.ISOFormat, ts)
	return &FlexRaster{
		Data:      vals,
		Height:    2,
		Width:     2,
		DataType:  "Byte",
		NoData:    0,
		NameSpace: ns,
		TimeStamp: stamp,
		SliceIdx:  0,
		ImageID:   imageID,
	}
}

func runAggregator(t *testing.T, req *ChunkRequest, rasters []*FlexRaster) *CubeChunk {
	errChan := make(chan error, 10)
	agg := NewChunkAggregator(context.Background(), req, errChan)
	go agg.Run()

	for _, r := range rasters {
		agg.In <- r
	}
	close(agg.In)

	select {
	case chunk := <-agg.Out:
		if chunk == nil {
			t.Fatalf("aggregator closed without a chunk: %v", <-errChan)
		}
		return chunk
	case err := <-errChan:
		t.Fatalf("aggregator failed: %v", err)
	}
	return nil
}

func TestAggregatorMeanOrderIndependent(t *testing.T) {
	obs := []*FlexRaster{
		byteRaster("red", "a", "2020-01-01T00:00:00.000Z", []byte{10, 0, 30, 40}),
		byteRaster("red", "b", "2020-01-02T00:00:00.000Z", []byte{20, 0, 50, 0}),
	}

	forward := runAggregator(t, aggRequest("mean", nil), obs)
	reversed := runAggregator(t, aggRequest("mean", nil), []*FlexRaster{obs[1], obs[0]})

	want := []float64{15, math.NaN(), 40, 40}
	for i, w := range want {
		got := forward.Data[i]
		if math.IsNaN(w) {
			if !math.IsNaN(got) {
				t.Errorf("cell %d: expected NaN, actual %v", i, got)
			}
			continue
		}
		if got != w {
			t.Errorf("cell %d: expected %v, actual %v", i, w, got)
		}
		if reversed.Data[i] != got {
			t.Errorf("cell %d: mean must not depend on arrival order", i)
		}
	}
}

func TestAggregatorFirstByTimestamp(t *testing.T) {
	// The later observation arrives first; "first" must still pick the
	// earlier timestamp.
	obs := []*FlexRaster{
		byteRaster("red", "late", "2020-01-05T00:00:00.000Z", []byte{99, 99, 99, 99}),
		byteRaster("red", "early", "2020-01-01T00:00:00.000Z", []byte{11, 11, 0, 11}),
	}

	chunk := runAggregator(t, aggRequest("first", nil), obs)
	if chunk.Data[0] != 11 || chunk.Data[1] != 11 || chunk.Data[3] != 11 {
		t.Errorf("first must pick the earliest valid value, actual %v", chunk.Data[:4])
	}
	// the earlier observation is nodata at cell 2, so the later one fills it
	if chunk.Data[2] != 99 {
		t.Errorf("nodata in the earliest observation must fall through, actual %v", chunk.Data[2])
	}

	chunk = runAggregator(t, aggRequest("last", nil), obs)
	if chunk.Data[0] != 99 || chunk.Data[2] != 99 {
		t.Errorf("last must pick the latest valid value, actual %v", chunk.Data[:4])
	}
}

func TestAggregatorMask(t *testing.T) {
	mask := &utils.Mask{ID: "fmask", Values: []float64{2}}
	obs := []*FlexRaster{
		byteRaster("red", "a", "2020-01-01T00:00:00.000Z", []byte{10, 20, 30, 40}),
		byteRaster("fmask", "a", "2020-01-01T00:00:00.000Z", []byte{1, 2, 1, 2}),
	}

	chunk := runAggregator(t, aggRequest("mean", mask), obs)
	if chunk.Data[0] != 10 || chunk.Data[2] != 30 {
		t.Errorf("clear cells must survive masking, actual %v", chunk.Data[:4])
	}
	if !math.IsNaN(chunk.Data[1]) || !math.IsNaN(chunk.Data[3]) {
		t.Errorf("masked cells must stay NaN, actual %v", chunk.Data[:4])
	}
}

func TestAggregatorCount(t *testing.T) {
	obs := []*FlexRaster{
		byteRaster("red", "a", "2020-01-01T00:00:00.000Z", []byte{10, 0, 30, 0}),
		byteRaster("red", "b", "2020-01-02T00:00:00.000Z", []byte{20, 0, 0, 0}),
	}

	chunk := runAggregator(t, aggRequest("count", nil), obs)
	want := []float64{2, 0, 1, 0}
	for i, w := range want {
		if chunk.Data[i] != w {
			t.Errorf("cell %d: expected count %v, actual %v", i, w, chunk.Data[i])
		}
	}
}

func TestAggregatorMedian(t *testing.T) {
	obs := []*FlexRaster{
		byteRaster("red", "a", "2020-01-01T00:00:00.000Z", []byte{10, 10, 10, 10}),
		byteRaster("red", "b", "2020-01-02T00:00:00.000Z", []byte{30, 20, 20, 0}),
		byteRaster("red", "c", "2020-01-03T00:00:00.000Z", []byte{20, 0, 90, 0}),
	}

	chunk := runAggregator(t, aggRequest("median", nil), obs)
	want := []float64{20, 15, 20, 10}
	for i, w := range want {
		if chunk.Data[i] != w {
			t.Errorf("cell %d: expected median %v, actual %v", i, w, chunk.Data[i])
		}
	}
}

func TestAggregatorVariance(t *testing.T) {
	obs := []*FlexRaster{
		byteRaster("red", "a", "2020-01-01T00:00:00.000Z", []byte{2, 4, 0, 0}),
		byteRaster("red", "b", "2020-01-02T00:00:00.000Z", []byte{4, 4, 0, 0}),
		byteRaster("red", "c", "2020-01-03T00:00:00.000Z", []byte{6, 4, 0, 0}),
	}

	chunk := runAggregator(t, aggRequest("var", nil), obs)
	if math.Abs(chunk.Data[0]-8.0/3.0) > 1e-9 {
		t.Errorf("expected population variance 8/3, actual %v", chunk.Data[0])
	}
	if chunk.Data[1] != 0 {
		t.Errorf("constant series must have zero variance, actual %v", chunk.Data[1])
	}
	if !math.IsNaN(chunk.Data[2]) {
		t.Errorf("cell with no observations must stay NaN, actual %v", chunk.Data[2])
	}

	chunk = runAggregator(t, aggRequest("sd", nil), obs)
	if math.Abs(chunk.Data[0]-math.Sqrt(8.0/3.0)) > 1e-9 {
		t.Errorf("expected sd sqrt(8/3), actual %v", chunk.Data[0])
	}
}

func TestAggregatorDefaultsToFirst(t *testing.T) {
	obs := []*FlexRaster{
		byteRaster("red", "b", "2020-01-02T00:00:00.000Z", []byte{99, 99, 99, 99}),
		byteRaster("red", "a", "2020-01-01T00:00:00.000Z", []byte{7, 7, 7, 7}),
	}

	chunk := runAggregator(t, aggRequest("", nil), obs)
	for i := 0; i < 4; i++ {
		if chunk.Data[i] != 7 {
			t.Errorf("cell %d: empty method must behave as first, actual %v", i, chunk.Data[i])
		}
	}
}
