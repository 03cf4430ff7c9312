package imageprocessor

import (
	"fmt"
	"image"

	"imagededup/logging"

	"github.com/corona10/goimagehash"
	"gocv.io/x/gocv"
)

// RGB is one downsampled pixel sample.
type RGB [3]uint8

// Features holds everything the pairwise similarity methods need for one
// image. Extracted once per image so every comparison against it reuses the
// same data, which also guarantees symmetric scores.
type Features struct {
	Path string

	// AHash is the average-hash bit string ("0"/"1" per grid cell).
	AHash string

	// Grid is the fixed-size RGB downsample used for structural distance,
	// row-major, GridSize*GridSize samples.
	Grid     []RGB
	GridSize int

	// Hist is the normalized 256-bin histogram per channel (R, G, B).
	Hist [3][256]float64

	// DHash is the coarse pre-filter hash; nil when the standard decoders
	// could not read the file (the pre-filter is then skipped).
	DHash *goimagehash.ImageHash
}

// ExtractFeatures loads an image and computes the full feature set used by
// the local similarity methods.
func ExtractFeatures(path string, hashGrid, structuralGrid int) (*Features, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	features := &Features{Path: path, GridSize: structuralGrid}

	// Methods degrade independently: a failed method is left empty and
	// scores 0 in comparisons, without discarding the methods that worked.
	if features.AHash, err = ComputeAverageHash(img, hashGrid); err != nil {
		logging.LogWarning("average hash failed for %s: %v", path, err)
	}
	if features.Grid, err = sampleGrid(img, structuralGrid); err != nil {
		logging.LogWarning("structural downsample failed for %s: %v", path, err)
	}
	if features.Hist, err = computeHistogram(img); err != nil {
		logging.LogWarning("histogram failed for %s: %v", path, err)
	}

	// The pre-filter hash runs on the stdlib decode path; its failure only
	// disables the pre-filter for this image.
	if stdImg, stdErr := decodeStd(path); stdErr == nil {
		features.DHash, _ = goimagehash.DifferenceHash(stdImg)
	} else {
		logging.DebugLog("pre-filter decode failed for %s: %v", path, stdErr)
	}

	return features, nil
}

// ComputeAverageHash calculates the average hash of the image on a
// grid x grid luminance downsample: one bit per cell, set when the cell is
// brighter than the mean. Returned as a bit string so hashes from different
// grid sizes can never be compared position-for-position by accident.
func ComputeAverageHash(img gocv.Mat, grid int) (string, error) {
	if img.Empty() {
		return "", fmt.Errorf("cannot compute hash for empty image")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Point{X: grid, Y: grid}, 0, 0, gocv.InterpolationLinear)

	gray := gocv.NewMat()
	defer gray.Close()
	if resized.Channels() != 1 {
		gocv.CvtColor(resized, &gray, gocv.ColorBGRToGray)
	} else {
		resized.CopyTo(&gray)
	}

	var sum uint64
	var count int
	for y := 0; y < gray.Rows(); y++ {
		for x := 0; x < gray.Cols(); x++ {
			sum += uint64(gray.GetUCharAt(y, x))
			count++
		}
	}

	var mean float64
	if count > 0 {
		mean = float64(sum) / float64(count)
	}

	hash := make([]byte, 0, count)
	for y := 0; y < gray.Rows(); y++ {
		for x := 0; x < gray.Cols(); x++ {
			if float64(gray.GetUCharAt(y, x)) > mean {
				hash = append(hash, '1')
			} else {
				hash = append(hash, '0')
			}
		}
	}

	return string(hash), nil
}

// sampleGrid downsamples the image to grid x grid color samples.
func sampleGrid(img gocv.Mat, grid int) ([]RGB, error) {
	if img.Empty() {
		return nil, fmt.Errorf("cannot sample empty image")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Point{X: grid, Y: grid}, 0, 0, gocv.InterpolationLinear)

	color := gocv.NewMat()
	defer color.Close()
	if resized.Channels() == 1 {
		gocv.CvtColor(resized, &color, gocv.ColorGrayToBGR)
	} else {
		resized.CopyTo(&color)
	}

	samples := make([]RGB, 0, grid*grid)
	for y := 0; y < grid; y++ {
		for x := 0; x < grid; x++ {
			// Mats are BGR ordered
			vec := color.GetVecbAt(y, x)
			samples = append(samples, RGB{vec[2], vec[1], vec[0]})
		}
	}

	return samples, nil
}

// histogramSampleEdge bounds the histogram pass; counting bins on a
// downsample keeps the cost independent of the source resolution.
const histogramSampleEdge = 256

// computeHistogram builds a normalized 256-bin histogram per color channel.
func computeHistogram(img gocv.Mat) ([3][256]float64, error) {
	var hist [3][256]float64
	if img.Empty() {
		return hist, fmt.Errorf("cannot compute histogram for empty image")
	}

	sampled := gocv.NewMat()
	defer sampled.Close()
	if img.Cols() > histogramSampleEdge || img.Rows() > histogramSampleEdge {
		gocv.Resize(img, &sampled, image.Point{X: histogramSampleEdge, Y: histogramSampleEdge}, 0, 0, gocv.InterpolationArea)
	} else {
		img.CopyTo(&sampled)
	}

	color := gocv.NewMat()
	defer color.Close()
	if sampled.Channels() == 1 {
		gocv.CvtColor(sampled, &color, gocv.ColorGrayToBGR)
	} else {
		sampled.CopyTo(&color)
	}

	var counts [3][256]int
	total := 0
	for y := 0; y < color.Rows(); y++ {
		for x := 0; x < color.Cols(); x++ {
			vec := color.GetVecbAt(y, x)
			counts[0][vec[2]]++
			counts[1][vec[1]]++
			counts[2][vec[0]]++
			total++
		}
	}

	if total == 0 {
		return hist, fmt.Errorf("image has no samples")
	}
	for c := 0; c < 3; c++ {
		for i := 0; i < 256; i++ {
			hist[c][i] = float64(counts[c][i]) / float64(total)
		}
	}

	return hist, nil
}
