package metrics

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/nci/gocube/utils"
)

type IndexerInfo struct {
	Duration    time.Duration `json:"duration"`
	Collection  string        `json:"collection"`
	NumImages   int64         `json:"num_images"`
	NumGranules int64         `json:"num_granules"`
}

type ReaderInfo struct {
	Duration      time.Duration `json:"duration"`
	NumGranules   int64         `json:"num_granules"`
	BytesRead     int64         `json:"bytes_read"`
	Retries       int64         `json:"retries"`
	SkippedImages int64         `json:"skipped_images"`
}

type ChunkInfo struct {
	NumChunks    int   `json:"num_chunks"`
	FailedChunks int   `json:"failed_chunks"`
	CacheHits    int64 `json:"cache_hits"`
}

type MetricsInfo struct {
	ReqTime     string                 `json:"req_time"`
	ReqDuration time.Duration          `json:"req_duration"`
	Collection  string                 `json:"collection"`
	Adjustments []utils.SnapAdjustment `json:"extent_adjustments,omitempty"`
	Indexer     *IndexerInfo           `json:"indexer"`
	Reader      *ReaderInfo            `json:"reader"`
	Chunks      *ChunkInfo             `json:"chunks"`
}

type MetricsCollector struct {
	Info   *MetricsInfo
	logger Logger
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	return &MetricsCollector{
		Info: &MetricsInfo{
			Indexer: &IndexerInfo{},
			Reader:  &ReaderInfo{},
			Chunks:  &ChunkInfo{},
		},
		logger: logger,
	}
}

func (m *MetricsCollector) Log() {
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *MetricsInfo) ToJSON() (string, error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(i)
	if err == nil {
		return buf.String(), nil
	}
	return "", err
}
