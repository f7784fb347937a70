package exporter

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func parquetRowCount(t *testing.T, path string) int64 {
	input, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer input.Close()

	stat, err := input.Stat()
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}

	file, err := parquet.OpenFile(input, stat.Size())
	if err != nil {
		t.Fatalf("parquet open failed: %v", err)
	}
	return file.NumRows()
}

func TestWriteParquet(t *testing.T) {
	nan := math.NaN()
	cube := testCube(t, []string{"red"}, 2, 2, 2, []float64{
		1, 2, 3, 4,
		5, nan, nan, nan,
	})

	path := filepath.Join(t.TempDir(), "cube.parquet")
	if err := WriteParquet(cube, path, false); err != nil {
		t.Fatalf("parquet failed: %v", err)
	}
	if n := parquetRowCount(t, path); n != 8 {
		t.Errorf("expected 8 rows, actual %d", n)
	}

	dropped := filepath.Join(t.TempDir(), "cube_valid.parquet")
	if err := WriteParquet(cube, dropped, true); err != nil {
		t.Fatalf("parquet failed: %v", err)
	}
	if n := parquetRowCount(t, dropped); n != 5 {
		t.Errorf("expected 5 valid rows, actual %d", n)
	}
}
