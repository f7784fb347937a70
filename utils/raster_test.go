package utils

import (
	"math"
	"testing"
)

func TestInitNoDataBytes(t *testing.T) {
	raw := InitNoDataBytes("Int16", -999, 4)
	if len(raw) != 4*SizeofInt16 {
		t.Fatalf("expected %d bytes, actual %d", 4*SizeofInt16, len(raw))
	}

	vals, err := BytesToFloat64(raw, "Int16", -999)
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	for i, v := range vals {
		if !math.IsNaN(v) {
			t.Errorf("sample %d: nodata fill must widen to NaN, actual %v", i, v)
		}
	}
}

func TestTypedSliceRoundTrip(t *testing.T) {
	raw := InitNoDataBytes("Int16", -999, 3)
	buf, err := TypedSliceFromBytes(raw, "Int16")
	if err != nil {
		t.Fatalf("typed view failed: %v", err)
	}

	samples := buf.([]int16)
	samples[0] = 42
	samples[2] = -7

	vals, err := BytesToFloat64(raw, "Int16", -999)
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if vals[0] != 42 || vals[2] != -7 {
		t.Errorf("typed writes must be visible through the shared bytes, actual %v", vals)
	}
	if !math.IsNaN(vals[1]) {
		t.Errorf("untouched nodata sample must widen to NaN, actual %v", vals[1])
	}
}

func TestBytesToFloat64Types(t *testing.T) {
	raw := InitNoDataBytes("Byte", 0, 2)
	raw[1] = 200
	vals, err := BytesToFloat64(raw, "Byte", 0)
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if !math.IsNaN(vals[0]) || vals[1] != 200 {
		t.Errorf("byte conversion wrong: %v", vals)
	}

	if _, err := BytesToFloat64([]byte{}, "Complex64", 0); err == nil {
		t.Errorf("unknown raster type must fail")
	}
}

func TestMaskExcludes(t *testing.T) {
	mask := &Mask{ID: "fmask", Values: []float64{2, 3}}
	if !mask.Excludes(2) || !mask.Excludes(3) {
		t.Errorf("listed values must be excluded")
	}
	if mask.Excludes(1) || mask.Excludes(0) {
		t.Errorf("unlisted values must not be excluded")
	}

	keep := &Mask{ID: "fmask", Values: []float64{1}, Inclusive: true}
	if keep.Excludes(1) {
		t.Errorf("inclusive mask must keep listed values")
	}
	if !keep.Excludes(4) {
		t.Errorf("inclusive mask must exclude unlisted values")
	}
}
