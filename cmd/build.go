package cmd

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/net/context"

	"github.com/nci/gocube/exporter"
	"github.com/nci/gocube/metrics"
	"github.com/nci/gocube/operator"
	"github.com/nci/gocube/processor"
	"github.com/nci/gocube/utils"
)

var (
	buildConfig   string
	buildColl     string
	buildExtent   string
	buildRes      float64
	buildCRS      string
	buildStart    string
	buildEnd      string
	buildBands    []string
	buildOutput   string
	buildFormat   string
	buildChunk    string
	buildFailFast bool
	buildTpl      string
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Materialize a cube over a view and export it",
	Long: `Materialize a regular (band, time, y, x) cube from a
	configured collection over the requested view and write it out.

	Band arguments accept plain band names or named expressions such as
	"ndvi=(nir-red)/(nir+red)"; referenced bands are read, expressions
	evaluated per pixel.

	Options:
		--extent:  target extent as left,bottom,right,top in the view CRS.
							 Snapped outward to whole cells, never shrunk.
		--format:  gtiff (one file per time slice), parquet or csv.`,
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevels()

		conf := &utils.Config{}
		if err := conf.LoadConfigFile(buildConfig); err != nil {
			logrus.Fatal(err)
		}

		def, err := findCollectionDef(conf, buildColl)
		if err != nil {
			logrus.Fatal(err)
		}

		base, err := baseViewFromDef(def)
		if err != nil {
			logrus.Fatal(err)
		}

		overrides := utils.ViewOverrides{}
		if len(buildExtent) > 0 {
			ext, err := parseExtent(buildExtent)
			if err != nil {
				logrus.Fatal(err)
			}
			overrides.Left, overrides.Bottom = &ext.Left, &ext.Bottom
			overrides.Right, overrides.Top = &ext.Right, &ext.Top
		}
		if buildRes > 0 {
			overrides.XRes, overrides.YRes = &buildRes, &buildRes
		}
		if len(buildCRS) > 0 {
			overrides.CRS = &buildCRS
		}
		if len(buildStart) > 0 {
			t, err := parseISOTime(buildStart)
			if err != nil {
				logrus.Fatal(err)
			}
			overrides.StartTime = &t
		}
		if len(buildEnd) > 0 {
			t, err := parseISOTime(buildEnd)
			if err != nil {
				logrus.Fatal(err)
			}
			overrides.EndTime = &t
		}

		view, adjs, err := utils.DeriveView(base, overrides)
		if err != nil {
			logrus.Fatal(err)
		}
		for _, adj := range adjs {
			logrus.Infof("extent snapped outward on %s: %v -> %v", adj.Axis, adj.From, adj.To)
		}

		coll, err := loadCollection(def, conf.ServiceConfig, view)
		if err != nil {
			logrus.Fatal(err)
		}

		chunkShape, err := parseChunkShape(buildChunk)
		if err != nil {
			logrus.Fatal(err)
		}

		var nameSpaces []string
		var applyExprs []string
		if len(buildBands) > 0 {
			bandExpr, err := utils.ParseBandExpressions(buildBands)
			if err != nil {
				logrus.Fatal(err)
			}
			nameSpaces = bandExpr.VarList
			for i := range bandExpr.Expressions {
				if bandExpr.Expressions[i] != nil || bandExpr.ExprNames[i] != bandExpr.ExprText[i] {
					applyExprs = buildBands
					break
				}
			}
		}

		var collector *metrics.MetricsCollector
		if viper.GetBool("verbose") {
			collector = metrics.NewMetricsCollector(metrics.NewStdoutLogger())
			collector.Info.Adjustments = adjs
		}

		pipeline := newPipeline(conf, buildTpl)
		req := &processor.CubeRequest{
			ConfigPayLoad: processor.ConfigPayLoad{
				NameSpaces:       nameSpaces,
				Mask:             def.Mask,
				FailFast:         buildFailFast,
				TempDir:          conf.ServiceConfig.TempDir,
				MetricsCollector: collector,
			},
			Collection: coll,
			View:       view,
			ChunkShape: chunkShape,
		}

		graph := operator.NewGraph(pipeline)
		node := graph.Collection(req)
		if len(applyExprs) > 0 {
			node, err = graph.Apply(node, applyExprs)
			if err != nil {
				logrus.Fatal(err)
			}
		}

		cube, err := graph.Materialize(context.Background(), node)
		if err != nil {
			logrus.Fatal(err)
		}
		for _, failure := range cube.Failures {
			logrus.Warnf("chunk %d failed, window left as nodata: %v", failure.ChunkID, failure.Err)
		}

		switch buildFormat {
		case "", "gtiff":
			paths, err := exporter.WriteGTiff(cube, filepath.Dir(buildOutput), filepath.Base(buildOutput))
			if err != nil {
				logrus.Fatal(err)
			}
			logrus.Infof("wrote %d files", len(paths))
		case "parquet":
			if err := exporter.WriteParquet(cube, buildOutput, true); err != nil {
				logrus.Fatal(err)
			}
		case "csv":
			f, err := os.Create(buildOutput)
			if err != nil {
				logrus.Fatal(err)
			}
			if err := exporter.WriteCSV(cube, f); err != nil {
				f.Close()
				logrus.Fatal(err)
			}
			if err := f.Close(); err != nil {
				logrus.Fatal(err)
			}
		default:
			logrus.Fatalf("unknown output format '%s'", buildFormat)
		}

		if collector != nil {
			collector.Log()
		}
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildConfig, "config", "c", "config.json", "Config file path")
	buildCmd.Flags().StringVar(&buildColl, "collection", "", "Collection name from the config")
	buildCmd.MarkFlagRequired("collection")
	buildCmd.Flags().StringVarP(&buildExtent, "extent", "e", "", "Target extent left,bottom,right,top in view CRS")
	buildCmd.Flags().Float64VarP(&buildRes, "res", "r", 0, "Cell size in view CRS units")
	buildCmd.Flags().StringVar(&buildCRS, "crs", "", "View CRS, e.g. EPSG:3577")
	buildCmd.Flags().StringVar(&buildStart, "start", "", "Start of the temporal extent")
	buildCmd.Flags().StringVar(&buildEnd, "end", "", "End of the temporal extent")
	buildCmd.Flags().StringSliceVarP(&buildBands, "bands", "b", nil, "Bands or named expressions to materialize")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "cube", "Output path or path prefix")
	buildCmd.Flags().StringVarP(&buildFormat, "format", "f", "gtiff", "Output format: gtiff, parquet, csv")
	buildCmd.Flags().StringVar(&buildChunk, "chunk", "", "Chunk shape t,y,x")
	buildCmd.Flags().BoolVar(&buildFailFast, "failfast", false, "Abort on the first failed chunk")
	buildCmd.Flags().StringVar(&buildTpl, "templates", "", "Directory holding the granule VRT template")
}
