package utils

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

var EtcDir = "."
var DataDir = "."

type ServiceConfig struct {
	IndexAddress string `json:"index_address"`
	MemcacheURI  string `json:"memcache_uri"`
	Concurrency  int    `json:"concurrency"`
	TempDir      string `json:"temp_dir"`
}

// Mask names a quality band and the set of its values that exclude a
// pixel from aggregation. Which codes to exclude is the caller's
// choice, the engine only applies the set.
type Mask struct {
	ID        string    `json:"id"`
	Values    []float64 `json:"values"`
	Inclusive bool      `json:"inclusive"`
}

// Excludes reports whether a mask band sample flags its pixel invalid.
func (m *Mask) Excludes(val float64) bool {
	for _, v := range m.Values {
		if val == v {
			return !m.Inclusive
		}
	}
	return m.Inclusive
}

// CollectionDef contains all the details needed to resolve a published
// image collection and build cubes from it.
type CollectionDef struct {
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	Source       string   `json:"source"`
	Format       string   `json:"format"`
	Bands        []string `json:"bands"`
	Mask         *Mask    `json:"mask"`
	StartISODate string   `json:"start_isodate"`
	EndISODate   string   `json:"end_isodate"`
	StepDays     int      `json:"step_days"`
	StepHours    int      `json:"step_hours"`
	StepMinutes  int      `json:"step_minutes"`
	TimeGen      string   `json:"time_generator"`
	Resampling   string   `json:"resampling"`
	Aggregation  string   `json:"aggregation"`
}

func (c *CollectionDef) Step() time.Duration {
	return time.Minute * time.Duration(60*24*c.StepDays+60*c.StepHours+c.StepMinutes)
}

// Config is the struct representing the configuration of a gocube
// deployment: the metadata index to query and the list of collections
// that can be served.
type Config struct {
	ServiceConfig ServiceConfig   `json:"service_config"`
	Collections   []CollectionDef `json:"collections"`
}

func LoadAllConfigFiles(rootDir string) (map[string]*Config, error) {
	configMap := make(map[string]*Config)
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && info.Name() == "config.json" {
			relPath, _ := filepath.Rel(rootDir, filepath.Dir(path))
			log.Printf("Loading config file: %s under namespace: %s\n", path, relPath)

			config := &Config{}
			e := config.LoadConfigFile(path)
			if e != nil {
				return e
			}

			configMap[relPath] = config
		}
		return nil
	})

	if err == nil && len(configMap) == 0 {
		err = fmt.Errorf("No config file found")
	}

	return configMap, err
}

// LoadConfigFile unmarshals a config.json document returning an
// instance of a Config variable containing all the values
func (config *Config) LoadConfigFile(configFile string) error {
	*config = Config{}
	cfg, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("Error while reading config file: %s. Error: %v", configFile, err)
	}

	err = json.Unmarshal(cfg, config)
	if err != nil {
		return fmt.Errorf("Error at JSON parsing config document: %s. Error: %v", configFile, err)
	}

	for i, coll := range config.Collections {
		if len(coll.Name) == 0 {
			return fmt.Errorf("collection %d in %s has no name", i, configFile)
		}
		if len(coll.Source) == 0 {
			return fmt.Errorf("collection %s has no source", coll.Name)
		}
		if len(coll.StartISODate) > 0 {
			if _, err := time.Parse(ISOFormat, coll.StartISODate); err != nil {
				return fmt.Errorf("collection %s has invalid start_isodate: %v", coll.Name, err)
			}
		}
		if len(coll.EndISODate) > 0 {
			if _, err := time.Parse(ISOFormat, coll.EndISODate); err != nil {
				return fmt.Errorf("collection %s has invalid end_isodate: %v", coll.Name, err)
			}
		}
	}

	if config.ServiceConfig.Concurrency < 0 {
		return fmt.Errorf("service_config.concurrency must not be negative")
	}

	return nil
}

func WatchConfig(infoLog, errLog *log.Logger, configMap *map[string]*Config) {
	// Catch SIGHUP to automatically reload config
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for {
			<-sighup
			infoLog.Println("Caught SIGHUP, reloading config...")
			confMap, err := LoadAllConfigFiles(EtcDir)
			if err != nil {
				errLog.Printf("Error in loading config files: %v\n", err)
				return
			}

			for k := range *configMap {
				delete(*configMap, k)
			}

			for k := range confMap {
				(*configMap)[k] = confMap[k]
			}
		}
	}()
}
