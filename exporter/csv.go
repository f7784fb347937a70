package exporter

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/nci/gocube/processor"
	"github.com/nci/gocube/utils"
)

// WriteCSV writes a drill-style table with one row per time slice and
// one column per band holding the spatial mean over valid cells. A
// band with no valid cell in a slice leaves its field empty.
func WriteCSV(cube *processor.Cube, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "date,%s\n", strings.Join(cube.Bands, ",")); err != nil {
		return err
	}

	size := cube.Height * cube.Width
	nt := len(cube.Times)

	for t, ts := range cube.Times {
		records := make([]string, 0, len(cube.Bands)+1)
		records = append(records, ts.Format(utils.ISOFormat))

		for b := range cube.Bands {
			off := (b*nt + t) * size
			sum := 0.0
			cnt := 0
			for _, val := range cube.Data[off : off+size] {
				if math.IsNaN(val) {
					continue
				}
				sum += val
				cnt++
			}

			if cnt == 0 {
				records = append(records, "")
				continue
			}
			records = append(records, strconv.FormatFloat(sum/float64(cnt), 'f', -1, 64))
		}

		if _, err := fmt.Fprintf(w, "%s\n", strings.Join(records, ",")); err != nil {
			return err
		}
	}

	return nil
}
