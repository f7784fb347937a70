package utils

import (
	"fmt"
	"math"
	"reflect"
	"unsafe"
)

const SizeofUint16 = 2
const SizeofInt16 = 2
const SizeofFloat32 = 4

// InitNoDataBytes returns the backing bytes of a typed slice of the
// requested length with every sample set to noDataValue.
func InitNoDataBytes(rType string, noDataValue float64, size int) []uint8 {
	switch rType {
	case "Byte":
		out := make([]uint8, size)
		fill := uint8(noDataValue)
		for i := 0; i < size; i++ {
			out[i] = fill
		}
		headr := *(*reflect.SliceHeader)(unsafe.Pointer(&out))
		return *(*[]uint8)(unsafe.Pointer(&headr))
	case "Int16":
		out := make([]int16, size)
		fill := int16(noDataValue)
		for i := 0; i < size; i++ {
			out[i] = fill
		}
		headr := *(*reflect.SliceHeader)(unsafe.Pointer(&out))
		headr.Len *= SizeofInt16
		headr.Cap *= SizeofInt16
		return *(*[]uint8)(unsafe.Pointer(&headr))
	case "UInt16":
		out := make([]uint16, size)
		fill := uint16(noDataValue)
		for i := 0; i < size; i++ {
			out[i] = fill
		}
		headr := *(*reflect.SliceHeader)(unsafe.Pointer(&out))
		headr.Len *= SizeofUint16
		headr.Cap *= SizeofUint16
		return *(*[]uint8)(unsafe.Pointer(&headr))
	case "Float32":
		out := make([]float32, size)
		fill := float32(noDataValue)
		for i := 0; i < size; i++ {
			out[i] = fill
		}
		headr := *(*reflect.SliceHeader)(unsafe.Pointer(&out))
		headr.Len *= SizeofFloat32
		headr.Cap *= SizeofFloat32
		return *(*[]uint8)(unsafe.Pointer(&headr))
	default:
		return []uint8{}
	}
}

// TypedSliceFromBytes reinterprets raw raster bytes as a typed slice
// sharing the same backing array, suitable for GDAL band I/O.
func TypedSliceFromBytes(data []byte, rType string) (interface{}, error) {
	header := *(*reflect.SliceHeader)(unsafe.Pointer(&data))

	switch rType {
	case "Byte":
		return data, nil
	case "Int16":
		header.Len /= SizeofInt16
		header.Cap /= SizeofInt16
		return *(*[]int16)(unsafe.Pointer(&header)), nil
	case "UInt16":
		header.Len /= SizeofUint16
		header.Cap /= SizeofUint16
		return *(*[]uint16)(unsafe.Pointer(&header)), nil
	case "Float32":
		header.Len /= SizeofFloat32
		header.Cap /= SizeofFloat32
		return *(*[]float32)(unsafe.Pointer(&header)), nil
	default:
		return nil, fmt.Errorf("TypedSliceFromBytes hasn't been implemented for raster type %s", rType)
	}
}

// BytesToFloat64 reinterprets raw raster bytes as rType samples and
// widens them to float64, mapping the nodata value to NaN.
func BytesToFloat64(data []byte, rType string, noData float64) ([]float64, error) {
	header := *(*reflect.SliceHeader)(unsafe.Pointer(&data))

	switch rType {
	case "Byte":
		src := *(*[]uint8)(unsafe.Pointer(&header))
		out := make([]float64, len(src))
		nodata := uint8(noData)
		for i, val := range src {
			if val == nodata {
				out[i] = math.NaN()
			} else {
				out[i] = float64(val)
			}
		}
		return out, nil
	case "Int16":
		header.Len /= SizeofInt16
		header.Cap /= SizeofInt16
		src := *(*[]int16)(unsafe.Pointer(&header))
		out := make([]float64, len(src))
		nodata := int16(noData)
		for i, val := range src {
			if val == nodata {
				out[i] = math.NaN()
			} else {
				out[i] = float64(val)
			}
		}
		return out, nil
	case "UInt16":
		header.Len /= SizeofUint16
		header.Cap /= SizeofUint16
		src := *(*[]uint16)(unsafe.Pointer(&header))
		out := make([]float64, len(src))
		nodata := uint16(noData)
		for i, val := range src {
			if val == nodata {
				out[i] = math.NaN()
			} else {
				out[i] = float64(val)
			}
		}
		return out, nil
	case "Float32":
		header.Len /= SizeofFloat32
		header.Cap /= SizeofFloat32
		src := *(*[]float32)(unsafe.Pointer(&header))
		out := make([]float64, len(src))
		nodata := float32(noData)
		for i, val := range src {
			if val == nodata || math.IsNaN(float64(val)) {
				out[i] = math.NaN()
			} else {
				out[i] = float64(val)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("BytesToFloat64 hasn't been implemented for raster type %s", rType)
	}
}
