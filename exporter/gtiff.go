package exporter

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/nci/gocube/processor"
	"github.com/nci/gocube/utils"
)

var registerOnce sync.Once

func registerDrivers() {
	registerOnce.Do(func() {
		godal.RegisterAll()
	})
}

func epsgFromCRS(crs string) (*godal.SpatialRef, error) {
	if !strings.HasPrefix(strings.ToUpper(crs), "EPSG:") {
		return nil, &utils.ConfigurationError{
			Reason: fmt.Sprintf("unsupported CRS '%s', expected EPSG:<code>", crs)}
	}
	code, err := strconv.Atoi(crs[5:])
	if err != nil {
		return nil, &utils.ConfigurationError{Reason: fmt.Sprintf("invalid EPSG code in '%s'", crs)}
	}
	return godal.NewSpatialRefFromEPSG(code)
}

// WriteGTiff writes one compressed GeoTIFF per time slice, bands in
// cube order, NaN as nodata. Returns the written paths in time order.
func WriteGTiff(cube *processor.Cube, dir, prefix string) ([]string, error) {
	registerDrivers()

	srs, err := epsgFromCRS(cube.View.CRS)
	if err != nil {
		return nil, err
	}
	defer srs.Close()

	view := cube.View
	xRes := (view.Right - view.Left) / float64(cube.Width)
	yRes := (view.Top - view.Bottom) / float64(cube.Height)
	size := cube.Height * cube.Width
	nt := len(cube.Times)

	var paths []string
	for t, ts := range cube.Times {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.tif", prefix, ts.Format("20060102T150405")))

		ds, err := godal.Create(godal.GTiff, path, len(cube.Bands), godal.Float64,
			cube.Width, cube.Height,
			godal.CreationOption("COMPRESS=DEFLATE", "TILED=YES"))
		if err != nil {
			return paths, err
		}

		if err := ds.SetGeoTransform([6]float64{view.Left, xRes, 0, view.Top, 0, -yRes}); err != nil {
			ds.Close()
			return paths, err
		}
		if err := ds.SetSpatialRef(srs); err != nil {
			ds.Close()
			return paths, err
		}

		for b := range cube.Bands {
			band := ds.Bands()[b]
			if err := band.SetNoData(math.NaN()); err != nil {
				ds.Close()
				return paths, err
			}
			off := (b*nt + t) * size
			if err := band.Write(0, 0, cube.Data[off:off+size], cube.Width, cube.Height); err != nil {
				ds.Close()
				return paths, err
			}
		}

		if err := ds.Close(); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// ReadGTiff loads one band-interleaved GeoTIFF produced by WriteGTiff
// back into memory, mapping nodata to NaN.
func ReadGTiff(path string) ([][]float64, int, int, error) {
	registerDrivers()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer ds.Close()

	structure := ds.Structure()
	var bands [][]float64
	for _, band := range ds.Bands() {
		buf := make([]float64, structure.SizeX*structure.SizeY)
		if err := band.Read(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
			return nil, 0, 0, err
		}
		if nd, ok := band.NoData(); ok && !math.IsNaN(nd) {
			for i, v := range buf {
				if v == nd {
					buf[i] = math.NaN()
				}
			}
		}
		bands = append(bands, buf)
	}
	return bands, structure.SizeX, structure.SizeY, nil
}
