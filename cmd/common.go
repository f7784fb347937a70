package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/net/context"

	"github.com/nci/gocube/collection"
	"github.com/nci/gocube/processor"
	"github.com/nci/gocube/utils"
)

func findCollectionDef(conf *utils.Config, name string) (*utils.CollectionDef, error) {
	for i := range conf.Collections {
		if conf.Collections[i].Name == name {
			return &conf.Collections[i], nil
		}
	}
	return nil, fmt.Errorf("collection '%s' not found in config", name)
}

// loadCollection resolves a collection definition into image
// descriptors via its configured source format.
func loadCollection(def *utils.CollectionDef, svc utils.ServiceConfig, view utils.CubeView) (*collection.Collection, error) {
	var images []*collection.Image
	var err error

	switch def.Format {
	case "", "json":
		images, err = collection.LoadJSONFile(def.Source)
	case "ard_yaml":
		images, err = collection.LoadSentinel2YamlDir(def.Source)
	case "index":
		client := collection.NewIndexClient(svc.IndexAddress, viper.GetBool("verbose"))
		endTime := view.EndTime
		images, err = client.Query(def.Source, view.Extent, view.CRS, view.StartTime, &endTime)
	default:
		return nil, fmt.Errorf("collection '%s' has unknown source format '%s'", def.Name, def.Format)
	}
	if err != nil {
		return nil, err
	}

	var filter *collection.BandFilter
	if len(def.Bands) > 0 {
		filter = &collection.BandFilter{Bands: def.Bands}
	}
	return collection.Build(def.Name, images, filter, nil)
}

func baseViewFromDef(def *utils.CollectionDef) (utils.CubeView, error) {
	view := utils.CubeView{
		Step:        def.Step(),
		TimeGen:     def.TimeGen,
		Resampling:  def.Resampling,
		Aggregation: def.Aggregation,
	}

	if len(def.StartISODate) > 0 {
		t, err := time.Parse(utils.ISOFormat, def.StartISODate)
		if err != nil {
			return view, err
		}
		view.StartTime = t
	}
	if len(def.EndISODate) > 0 {
		t, err := time.Parse(utils.ISOFormat, def.EndISODate)
		if err != nil {
			return view, err
		}
		view.EndTime = t
	}
	return view, nil
}

func newPipeline(conf *utils.Config, templateDir string) *processor.CubePipeline {
	pipeline := processor.NewCubePipeline(context.Background(), conf.ServiceConfig.Concurrency)
	pipeline.TemplateDir = templateDir
	pipeline.Verbose = viper.GetBool("verbose")
	if len(conf.ServiceConfig.MemcacheURI) > 0 {
		pipeline.Cache = processor.NewChunkCache(conf.ServiceConfig.MemcacheURI)
	}
	return pipeline
}

func parseExtent(s string) (utils.Extent, error) {
	var ext utils.Extent
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return ext, fmt.Errorf("extent must be left,bottom,right,top, got '%s'", s)
	}
	vals := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return ext, fmt.Errorf("invalid extent coordinate '%s'", f)
		}
		vals[i] = v
	}
	return utils.Extent{Left: vals[0], Bottom: vals[1], Right: vals[2], Top: vals[3]}, nil
}

func parseChunkShape(s string) (processor.ChunkShape, error) {
	var shape processor.ChunkShape
	if len(s) == 0 {
		return shape, nil
	}
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return shape, fmt.Errorf("chunk shape must be t,y,x, got '%s'", s)
	}
	vals := make([]int, 3)
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return shape, fmt.Errorf("invalid chunk size '%s'", f)
		}
		vals[i] = v
	}
	return processor.ChunkShape{NT: vals[0], NY: vals[1], NX: vals[2]}, nil
}

func parseISOTime(s string) (time.Time, error) {
	t, err := time.Parse(utils.ISOFormat, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
	}
	return t, err
}
