package processor

import (
	"github.com/nci/gocube/utils"
)

// PlanChunks partitions the cube grid of a snapped view into chunk
// descriptors. The partition covers every cell exactly once, iterating
// time-major then row-major so chunk IDs are stable for a given view
// and shape. Trailing chunks along each axis are clipped to the grid.
func PlanChunks(view utils.CubeView, shape ChunkShape) []ChunkDescriptor {
	shape = shape.withDefaults()

	times := view.TimeSlices()
	height := view.Height()
	width := view.Width()

	var chunks []ChunkDescriptor
	id := 0
	for tOff := 0; tOff < len(times); tOff += shape.NT {
		nt := shape.NT
		if tOff+nt > len(times) {
			nt = len(times) - tOff
		}

		for yOff := 0; yOff < height; yOff += shape.NY {
			ny := shape.NY
			if yOff+ny > height {
				ny = height - yOff
			}

			for xOff := 0; xOff < width; xOff += shape.NX {
				nx := shape.NX
				if xOff+nx > width {
					nx = width - xOff
				}

				top := view.Top - float64(yOff)*view.YRes
				left := view.Left + float64(xOff)*view.XRes

				chunks = append(chunks, ChunkDescriptor{
					ID:   id,
					TOff: tOff,
					NT:   nt,
					YOff: yOff,
					NY:   ny,
					XOff: xOff,
					NX:   nx,
					BBox: utils.Extent{
						Left:   left,
						Right:  left + float64(nx)*view.XRes,
						Bottom: top - float64(ny)*view.YRes,
						Top:    top,
					},
					Times: times[tOff : tOff+nt],
				})
				id++
			}
		}
	}

	return chunks
}
