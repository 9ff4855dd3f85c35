// Package grid computes the column count that maximizes displayed video
// area for a wall of 16:9 tiles.
package grid

import "math"

const (
	maxColumns  = 6
	aspectRatio = 16.0 / 9.0
)

// BestColumnCount returns the column count in [1, min(n, 6)] that maximizes
// total displayed 16:9 video area, given the container box, inter-tile gap
// and per-tile header height. Ties go to the smallest column count.
//
// Degenerate inputs fall back deterministically: n <= 1 yields 1, an
// invalid container yields clamp(n, 0, 2), and a container too small for
// any candidate yields min(n, 6).
func BestColumnCount(n int, width, height, gap, headerHeight float64) int {
	if n <= 1 {
		return 1
	}
	if !validDimension(width) || !validDimension(height) {
		if n > 2 {
			return 2
		}
		if n < 0 {
			return 0
		}
		return n
	}

	maxCols := n
	if maxCols > maxColumns {
		maxCols = maxColumns
	}

	bestCols := 0
	bestArea := 0.0
	for cols := 1; cols <= maxCols; cols++ {
		rows := (n + cols - 1) / cols
		cellWidth := (width - float64(cols-1)*gap) / float64(cols)
		cellHeight := (height - float64(rows-1)*gap) / float64(rows)
		videoHeight := cellHeight - headerHeight
		if cellWidth <= 0 || videoHeight <= 0 {
			continue
		}

		// The displayed video is 16:9, bounded by the tighter of the cell
		// width and the header-adjusted height.
		videoWidth := math.Min(cellWidth, videoHeight*aspectRatio)
		area := videoWidth * (videoWidth / aspectRatio)
		if area > bestArea {
			bestArea = area
			bestCols = cols
		}
	}

	if bestCols == 0 {
		return maxCols
	}
	return bestCols
}

func validDimension(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
