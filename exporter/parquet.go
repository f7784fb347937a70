package exporter

import (
	"math"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"

	"github.com/nci/gocube/processor"
	"github.com/nci/gocube/utils"
)

// CubeRow is one cell observation in long format.
type CubeRow struct {
	Band  string  `parquet:"band, type=UTF8"`
	Time  string  `parquet:"time, type=UTF8"`
	Y     float64 `parquet:"y, type=DOUBLE"`
	X     float64 `parquet:"x, type=DOUBLE"`
	Value float64 `parquet:"value, type=DOUBLE"`
}

const rowBufferSize = 1 << 16

// WriteParquet streams the cube to a snappy-compressed parquet file in
// long format, one row per cell. With dropNoData set, NaN cells are
// omitted instead of written.
func WriteParquet(cube *processor.Cube, path string, dropNoData bool) error {
	output, err := os.Create(path)
	if err != nil {
		return err
	}

	schema := parquet.SchemaOf(new(CubeRow))
	writer := parquet.NewGenericWriter[CubeRow](output, schema, parquet.Compression(&parquet.Snappy))

	view := cube.View
	xRes := (view.Right - view.Left) / float64(cube.Width)
	yRes := (view.Top - view.Bottom) / float64(cube.Height)
	nt := len(cube.Times)

	rowBuf := make([]CubeRow, 0, rowBufferSize)
	flush := func() error {
		if len(rowBuf) == 0 {
			return nil
		}
		if _, err := writer.Write(rowBuf); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
		rowBuf = rowBuf[:0]
		return nil
	}

	for b, bandName := range cube.Bands {
		for t, ts := range cube.Times {
			timeStr := ts.Format(utils.ISOFormat)
			for y := 0; y < cube.Height; y++ {
				for x := 0; x < cube.Width; x++ {
					val := cube.Data[cube.Offset(b, t, y, x)]
					if dropNoData && math.IsNaN(val) {
						continue
					}
					rowBuf = append(rowBuf, CubeRow{
						Band:  bandName,
						Time:  timeStr,
						Y:     view.Top - (float64(y)+0.5)*yRes,
						X:     view.Left + (float64(x)+0.5)*xRes,
						Value: val,
					})
					if len(rowBuf) == rowBufferSize {
						if err := flush(); err != nil {
							logrus.Error(err)
							output.Close()
							return err
						}
					}
				}
			}
		}
	}

	if err := flush(); err != nil {
		output.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		output.Close()
		return err
	}
	return output.Close()
}
