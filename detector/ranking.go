package detector

import (
	"sort"
	"time"

	"imagededup/types"
)

// formatPreference scores container formats; lossless and lesser-compressed
// formats rank above heavily compressed ones.
var formatPreference = map[string]float64{
	"png":  1.0,
	"tiff": 1.0,
	"tif":  1.0,
	"bmp":  0.9,
	"webp": 0.7,
	"jpg":  0.6,
	"jpeg": 0.6,
	"gif":  0.4,
}

const defaultFormatPreference = 0.5

// rankAll computes quality scores, orders every group by quality and applies
// the safety invariants. Runs unconditionally before groups are returned to
// callers, so the deletion-candidate set is always strictly smaller than the
// group.
func (d *Detector) rankAll(groups []*types.DuplicateGroup) []*types.DuplicateGroup {
	now := time.Now()
	for _, group := range groups {
		d.rankGroup(group, now)
	}
	enforceRecommendationInvariants(groups)
	return groups
}

// rankGroup scores each image in the group and sorts best-first. The first
// image becomes the retain recommendation; the rest are deletion candidates.
func (d *Detector) rankGroup(group *types.DuplicateGroup, now time.Time) {
	var maxResolution, maxSize int64
	for _, img := range group.Images {
		if img.Resolution() > maxResolution {
			maxResolution = img.Resolution()
		}
		if img.Size > maxSize {
			maxSize = img.Size
		}
	}

	for _, img := range group.Images {
		img.QualityScore = d.qualityScore(img, maxResolution, maxSize, now)
		img.Recommended = false
	}

	sort.SliceStable(group.Images, func(i, j int) bool {
		return group.Images[i].QualityScore > group.Images[j].QualityScore
	})

	if len(group.Images) > 0 {
		group.Images[0].Recommended = true
	}
}

// qualityScore weighs resolution (dominant), file size, recency, format
// preference and directory depth into one [0,1] score.
func (d *Detector) qualityScore(img *types.ImageRecord, maxResolution, maxSize int64, now time.Time) float64 {
	q := d.quality

	var resolutionScore float64
	if maxResolution > 0 {
		resolutionScore = float64(img.Resolution()) / float64(maxResolution)
	}

	var sizeScore float64
	if maxSize > 0 {
		sizeScore = float64(img.Size) / float64(maxSize)
	}

	recencyScore := recency(img.ModifiedAt, now, q.RecencyWindow)

	formatScore, ok := formatPreference[img.Format]
	if !ok {
		formatScore = defaultFormatPreference
	}

	depthScore := float64(img.Depth()) / 8
	if depthScore > 1 {
		depthScore = 1
	}

	score := resolutionScore*q.ResolutionWeight +
		sizeScore*q.SizeWeight +
		recencyScore*q.RecencyWeight +
		formatScore*q.FormatWeight +
		depthScore*q.DepthWeight

	return clamp01(score)
}

// recency scores 1 for a file modified now, decaying linearly to 0 at the
// far edge of the window.
func recency(modified, now time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	age := now.Sub(modified)
	if age <= 0 {
		return 1
	}
	if age >= window {
		return 0
	}
	return 1 - float64(age)/float64(window)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// enforceRecommendationInvariants repairs every group so at least one image
// is recommended and the recommended count stays below the group size. The
// recommended image is never a deletion candidate.
func enforceRecommendationInvariants(groups []*types.DuplicateGroup) {
	for _, group := range groups {
		if len(group.Images) == 0 {
			continue
		}

		recommended := 0
		for _, img := range group.Images {
			if img.Recommended {
				recommended++
			}
		}

		if recommended == 0 {
			group.Images[0].Recommended = true
			continue
		}

		if recommended >= len(group.Images) {
			keep := true
			for _, img := range group.Images {
				img.Recommended = keep
				keep = false
			}
		}
	}
}
