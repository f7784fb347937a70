package cmd

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

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
	servePort          int
	serveEtcDir        string
	serveLogDir        string
	serveMaxLogSize    int64
	serveMaxLogFiles   int
	serveConfigMap     map[string]*utils.Config
	serveMetricsLogger metrics.Logger
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve drill requests over HTTP",
	Long: `Load every config.json under the etc directory, one service
	namespace per subdirectory, and answer drill requests with CSV time
	series. Configs reload on SIGHUP without a restart. Request metrics
	go to stdout, or to size-rotated JSON log files when a log directory
	is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevels()

		utils.EtcDir = serveEtcDir
		configMap, err := utils.LoadAllConfigFiles(serveEtcDir)
		if err != nil {
			logrus.Fatal(err)
		}
		serveConfigMap = configMap

		infoLog := log.New(os.Stdout, "gocube ", log.LstdFlags)
		errLog := log.New(os.Stderr, "gocube ", log.LstdFlags)
		utils.WatchConfig(infoLog, errLog, &serveConfigMap)

		if len(serveLogDir) > 0 {
			serveMetricsLogger = metrics.NewFileLogger(serveLogDir, serveMaxLogSize, serveMaxLogFiles, viper.GetBool("verbose"))
		} else {
			serveMetricsLogger = metrics.NewStdoutLogger()
		}

		http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			serveDrill(w, r, serveConfigMap, serveMetricsLogger)
		})

		infoLog.Printf("Listening on %d...", servePort)
		logrus.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", servePort), nil))
	},
}

// splitServePath resolves a request path into a config namespace and an
// operation. The namespace is the directory the config.json was loaded
// from, "." for the etc root.
func splitServePath(p string) (string, string) {
	p = strings.Trim(path.Clean("/"+p), "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ".", p
	}
	return p[:idx], p[idx+1:]
}

func serveDrill(w http.ResponseWriter, r *http.Request, configMap map[string]*utils.Config, logger metrics.Logger) {
	namespace, op := splitServePath(r.URL.Path)
	conf, ok := configMap[namespace]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown namespace '%s'", namespace), http.StatusNotFound)
		return
	}
	if op != "drill" {
		http.Error(w, fmt.Sprintf("unknown operation '%s'", op), http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	def, err := findCollectionDef(conf, query.Get("collection"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, adjs, err := viewFromQuery(def, query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	coll, err := loadCollection(def, conf.ServiceConfig, view)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	collector := metrics.NewMetricsCollector(logger)
	collector.Info.ReqTime = time.Now().Format(time.RFC3339)
	collector.Info.Collection = def.Name
	collector.Info.Adjustments = adjs
	reqStart := time.Now()

	bands := def.Bands
	if b := query.Get("bands"); len(b) > 0 {
		bands = strings.Split(b, ",")
	}

	pipeline := newPipeline(conf, "")
	req := &processor.CubeRequest{
		ConfigPayLoad: processor.ConfigPayLoad{
			NameSpaces:       bands,
			Mask:             def.Mask,
			TempDir:          conf.ServiceConfig.TempDir,
			MetricsCollector: collector,
		},
		Collection: coll,
		View:       view,
	}

	graph := operator.NewGraph(pipeline)
	node := graph.Collection(req)
	cube, err := graph.Materialize(context.Background(), node)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	if err := exporter.WriteCSV(cube, w); err != nil {
		log.Printf("serve: csv write error: %v", err)
	}

	collector.Info.ReqDuration = time.Since(reqStart)
	collector.Log()
}

// viewFromQuery derives the request view from the collection defaults
// and the extent/res/crs/start/end query parameters.
func viewFromQuery(def *utils.CollectionDef, query map[string][]string) (utils.CubeView, []utils.SnapAdjustment, error) {
	get := func(key string) string {
		if vals, ok := query[key]; ok && len(vals) > 0 {
			return vals[0]
		}
		return ""
	}

	base, err := baseViewFromDef(def)
	if err != nil {
		return base, nil, err
	}

	extStr := get("extent")
	if len(extStr) == 0 {
		return base, nil, fmt.Errorf("missing extent parameter")
	}
	ext, err := parseExtent(extStr)
	if err != nil {
		return base, nil, err
	}

	overrides := utils.ViewOverrides{
		Left: &ext.Left, Bottom: &ext.Bottom, Right: &ext.Right, Top: &ext.Top,
	}
	if resStr := get("res"); len(resStr) > 0 {
		res, err := strconv.ParseFloat(resStr, 64)
		if err != nil {
			return base, nil, fmt.Errorf("invalid res '%s'", resStr)
		}
		overrides.XRes, overrides.YRes = &res, &res
	}
	if crs := get("crs"); len(crs) > 0 {
		overrides.CRS = &crs
	}
	if start := get("start"); len(start) > 0 {
		t, err := parseISOTime(start)
		if err != nil {
			return base, nil, err
		}
		overrides.StartTime = &t
	}
	if end := get("end"); len(end) > 0 {
		t, err := parseISOTime(end)
		if err != nil {
			return base, nil, err
		}
		overrides.EndTime = &t
	}

	return utils.DeriveView(base, overrides)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveEtcDir, "etc", "etc", "Directory tree of config.json files")
	serveCmd.Flags().StringVar(&serveLogDir, "metrics-log-dir", "", "Metrics log directory, stdout when omitted")
	serveCmd.Flags().Int64Var(&serveMaxLogSize, "max-log-file-size", 0, "Maximum metrics log file size before rotation")
	serveCmd.Flags().IntVar(&serveMaxLogFiles, "max-log-files", 0, "Maximum number of rotated metrics log files")
}
