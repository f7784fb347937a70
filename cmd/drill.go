package cmd

import (
	"encoding/json"
	"os"

	geo "github.com/nci/geometry"
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
	drillConfig  string
	drillColl    string
	drillFeature string
	drillRes     float64
	drillCRS     string
	drillStart   string
	drillEnd     string
	drillBands   []string
	drillOutput  string
)

// drillCmd represents the drill command
var drillCmd = &cobra.Command{
	Use:   "drill",
	Short: "Extract a polygon time series as CSV",
	Long: `Materialize the cube cells covered by a GeoJSON polygon and
	write one CSV row per time slice holding the spatial mean of each
	band. The feature must be expressed in the view CRS.`,
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevels()

		conf := &utils.Config{}
		if err := conf.LoadConfigFile(drillConfig); err != nil {
			logrus.Fatal(err)
		}

		def, err := findCollectionDef(conf, drillColl)
		if err != nil {
			logrus.Fatal(err)
		}

		rawFeat, err := os.ReadFile(drillFeature)
		if err != nil {
			logrus.Fatal(err)
		}
		var feat geo.Feature
		if err := json.Unmarshal(rawFeat, &feat); err != nil || feat.Geometry == nil {
			var featCol geo.FeatureCollection
			if err2 := json.Unmarshal(rawFeat, &featCol); err2 != nil || len(featCol.Features) == 0 {
				logrus.Fatalf("cannot parse feature document %s: %v", drillFeature, err)
			}
			feat = featCol.Features[0]
		}

		ext, err := featureBBox(feat)
		if err != nil {
			logrus.Fatal(err)
		}

		base, err := baseViewFromDef(def)
		if err != nil {
			logrus.Fatal(err)
		}

		overrides := utils.ViewOverrides{
			Left: &ext.Left, Bottom: &ext.Bottom, Right: &ext.Right, Top: &ext.Top,
		}
		if drillRes > 0 {
			overrides.XRes, overrides.YRes = &drillRes, &drillRes
		}
		if len(drillCRS) > 0 {
			overrides.CRS = &drillCRS
		}
		if len(drillStart) > 0 {
			t, err := parseISOTime(drillStart)
			if err != nil {
				logrus.Fatal(err)
			}
			overrides.StartTime = &t
		}
		if len(drillEnd) > 0 {
			t, err := parseISOTime(drillEnd)
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

		var collector *metrics.MetricsCollector
		if viper.GetBool("verbose") {
			collector = metrics.NewMetricsCollector(metrics.NewStdoutLogger())
			collector.Info.Adjustments = adjs
		}

		pipeline := newPipeline(conf, "")
		req := &processor.CubeRequest{
			ConfigPayLoad: processor.ConfigPayLoad{
				NameSpaces:       drillBands,
				Mask:             def.Mask,
				TempDir:          conf.ServiceConfig.TempDir,
				MetricsCollector: collector,
			},
			Collection: coll,
			View:       view,
		}

		graph := operator.NewGraph(pipeline)
		node := graph.Collection(req)
		node, err = graph.FilterGeom(node, feat)
		if err != nil {
			logrus.Fatal(err)
		}

		cube, err := graph.Materialize(context.Background(), node)
		if err != nil {
			logrus.Fatal(err)
		}
		for _, failure := range cube.Failures {
			logrus.Warnf("chunk %d failed, window left as nodata: %v", failure.ChunkID, failure.Err)
		}

		out := os.Stdout
		if len(drillOutput) > 0 {
			out, err = os.Create(drillOutput)
			if err != nil {
				logrus.Fatal(err)
			}
			defer out.Close()
		}
		if err := exporter.WriteCSV(cube, out); err != nil {
			logrus.Fatal(err)
		}

		if collector != nil {
			collector.Log()
		}
	},
}

// featureBBox computes the bounding box of a polygonal GeoJSON feature
// from its coordinate arrays.
func featureBBox(feat geo.Feature) (utils.Extent, error) {
	var ext utils.Extent

	raw, err := json.Marshal(feat.Geometry)
	if err != nil {
		return ext, err
	}

	var gj struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &gj); err != nil {
		return ext, err
	}

	var points [][]float64
	switch gj.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(gj.Coordinates, &rings); err != nil {
			return ext, err
		}
		for _, ring := range rings {
			points = append(points, ring...)
		}
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(gj.Coordinates, &polys); err != nil {
			return ext, err
		}
		for _, rings := range polys {
			for _, ring := range rings {
				points = append(points, ring...)
			}
		}
	default:
		return ext, &utils.ConfigurationError{
			Reason: "only Polygon and MultiPolygon features are supported"}
	}

	if len(points) == 0 {
		return ext, &utils.ConfigurationError{Reason: "feature has no coordinates"}
	}

	ext = utils.Extent{Left: points[0][0], Right: points[0][0], Bottom: points[0][1], Top: points[0][1]}
	for _, pt := range points[1:] {
		if pt[0] < ext.Left {
			ext.Left = pt[0]
		}
		if pt[0] > ext.Right {
			ext.Right = pt[0]
		}
		if pt[1] < ext.Bottom {
			ext.Bottom = pt[1]
		}
		if pt[1] > ext.Top {
			ext.Top = pt[1]
		}
	}
	return ext, nil
}

func init() {
	rootCmd.AddCommand(drillCmd)

	drillCmd.Flags().StringVarP(&drillConfig, "config", "c", "config.json", "Config file path")
	drillCmd.Flags().StringVar(&drillColl, "collection", "", "Collection name from the config")
	drillCmd.MarkFlagRequired("collection")
	drillCmd.Flags().StringVarP(&drillFeature, "feature", "g", "", "GeoJSON Feature or FeatureCollection file")
	drillCmd.MarkFlagRequired("feature")
	drillCmd.Flags().Float64VarP(&drillRes, "res", "r", 0, "Cell size in view CRS units")
	drillCmd.Flags().StringVar(&drillCRS, "crs", "", "View CRS, e.g. EPSG:3577")
	drillCmd.Flags().StringVar(&drillStart, "start", "", "Start of the temporal extent")
	drillCmd.Flags().StringVar(&drillEnd, "end", "", "End of the temporal extent")
	drillCmd.Flags().StringSliceVarP(&drillBands, "bands", "b", nil, "Bands to drill")
	drillCmd.Flags().StringVarP(&drillOutput, "output", "o", "", "Output CSV path, stdout when omitted")
}
