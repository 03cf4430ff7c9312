package imageprocessor

import "math"

// maxChannelDistance is the largest possible per-pixel RGB Euclidean
// distance: sqrt(3) * 255.
var maxChannelDistance = math.Sqrt(3) * 255

// HashSimilarity returns the fraction of matching bit positions between two
// average-hash bit strings. Hashes of different lengths cannot be compared
// and score 0.
func HashSimilarity(hash1, hash2 string) float64 {
	if len(hash1) == 0 || len(hash1) != len(hash2) {
		return 0
	}

	matching := 0
	for i := 0; i < len(hash1); i++ {
		if hash1[i] == hash2[i] {
			matching++
		}
	}

	return float64(matching) / float64(len(hash1))
}

// StructuralSimilarity returns 1 minus the average per-pixel RGB Euclidean
// distance between two identically sized downsampled grids, normalized by
// the maximum possible distance. Grids of different sizes score 0.
func StructuralSimilarity(grid1, grid2 []RGB) float64 {
	if len(grid1) == 0 || len(grid1) != len(grid2) {
		return 0
	}

	var totalDistance float64
	for i := range grid1 {
		dr := float64(grid1[i][0]) - float64(grid2[i][0])
		dg := float64(grid1[i][1]) - float64(grid2[i][1])
		db := float64(grid1[i][2]) - float64(grid2[i][2])
		totalDistance += math.Sqrt(dr*dr + dg*dg + db*db)
	}

	normalized := totalDistance / float64(len(grid1)) / maxChannelDistance
	if normalized > 1 {
		normalized = 1
	}

	return 1 - normalized
}

// HistogramSimilarity returns the histogram intersection of two images,
// averaged across the three color channels. Both histograms are normalized,
// so the per-channel intersection is sum(min(h1[i], h2[i])).
func HistogramSimilarity(hist1, hist2 *[3][256]float64) float64 {
	if hist1 == nil || hist2 == nil {
		return 0
	}

	var total float64
	for c := 0; c < 3; c++ {
		var intersection float64
		for i := 0; i < 256; i++ {
			intersection += math.Min(hist1[c][i], hist2[c][i])
		}
		total += intersection
	}

	return total / 3
}
