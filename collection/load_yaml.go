package collection

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

type ardBand struct {
	Info struct {
		Geotransform []float64
		Height       int
		Width        int
	}

	Path string
}

type ardMetadata struct {
	Id string

	Format struct {
		Name string
	}

	Extent struct {
		Center_dt string
	}

	Grid_spatial struct {
		Projection struct {
			Geo_ref_Points struct {
				Ll struct {
					X string
					Y string
				}
				Lr struct {
					X string
					Y string
				}
				Ul struct {
					X string
					Y string
				}
				Ur struct {
					X string
					Y string
				}
			}
			Spatial_reference string
		}
	}

	Image struct {
		Bands map[string]*ardBand
	}

	Lineage struct {
		Source_datasets struct {
			Cloud_cover_percentage float64
		}
	}
}

// LoadSentinel2Yaml turns one Sentinel-2 ARD metadata document into an
// image descriptor with one asset per band.
func LoadSentinel2Yaml(filename string) (*Image, error) {
	rawData, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ard := ardMetadata{}
	err = yaml.Unmarshal(rawData, &ard)
	if err != nil {
		return nil, err
	}

	dsPath, _ := filepath.Split(filename)

	timestampFormat := "2006-01-02T15:04:05Z"
	timestamp, err := time.ParseInLocation(timestampFormat, ard.Extent.Center_dt, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp in %s: %v", filename, err)
	}

	pts := ard.Grid_spatial.Projection.Geo_ref_Points
	polygon := fmt.Sprintf("POLYGON ((%s %s,%s %s,%s %s,%s %s,%s %s))",
		pts.Ul.X, pts.Ul.Y,
		pts.Ll.X, pts.Ll.Y,
		pts.Lr.X, pts.Lr.Y,
		pts.Ur.X, pts.Ur.Y,
		pts.Ul.X, pts.Ul.Y)

	id := ard.Id
	if len(id) == 0 {
		id = filename
	}

	img := &Image{
		ID:        id,
		TimeStamp: timestamp,
		Polygon:   polygon,
		CRS:       ard.Grid_spatial.Projection.Spatial_reference,
		Bands:     make(map[string]*BandAsset),
		Metadata: map[string]float64{
			"cloud_cover": ard.Lineage.Source_datasets.Cloud_cover_percentage,
		},
	}

	for ns, aband := range ard.Image.Bands {
		img.Bands[ns] = &BandAsset{
			Path:         filepath.Join(dsPath, aband.Path),
			RasterType:   ardBandDataType(ns),
			NoData:       ardBandNoData(ns),
			Height:       aband.Info.Height,
			Width:        aband.Info.Width,
			Geotransform: aband.Info.Geotransform,
		}
	}

	if len(img.Bands) == 0 {
		return nil, fmt.Errorf("no bands found in %s", filename)
	}

	return img, nil
}

// LoadSentinel2YamlDir walks a directory of ARD documents, skipping
// the unreadable ones with a warning.
func LoadSentinel2YamlDir(rootDir string) ([]*Image, error) {
	var images []*Image
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".yaml" {
			return nil
		}
		img, e := LoadSentinel2Yaml(path)
		if e != nil {
			log.Printf("skipping %s: %v", path, e)
			return nil
		}
		images = append(images, img)
		return nil
	})
	return images, err
}

func ardBandDataType(bandName string) string {
	switch bandName {
	case "fmask", "scl", "nbart_contiguity", "nbar_contiguity", "terrain_shadow":
		return "Byte"
	case "solar_zenith", "solar_azimuth", "satellite_view", "satellite_azimuth",
		"relative_azimuth", "relative_slope", "incident", "exiting",
		"azimuthal_incident", "azimuthal_exiting", "timedelta":
		return "Float32"
	default:
		// reflectance bands
		return "Int16"
	}
}

func ardBandNoData(bandName string) float64 {
	switch ardBandDataType(bandName) {
	case "Byte":
		return 0
	case "Float32":
		return -999
	default:
		return -999
	}
}
