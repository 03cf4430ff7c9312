package detector

import (
	"testing"
	"time"

	"imagededup/config"
	"imagededup/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankingDetector() *Detector {
	return New(fakePreparer{}, &fakeScorer{}, config.Default().Detection, config.Default().Quality)
}

func TestRankGroupResolutionDominates(t *testing.T) {
	now := time.Now()
	large := &types.ImageRecord{
		Path:       "photos/large.jpg",
		Width:      4000,
		Height:     3000,
		Size:       1 << 20,
		Format:     "jpg",
		ModifiedAt: now.Add(-2 * 365 * 24 * time.Hour),
	}
	small := &types.ImageRecord{
		Path:       "photos/small.png",
		Width:      800,
		Height:     600,
		Size:       2 << 20,
		Format:     "png",
		ModifiedAt: now,
	}
	group := &types.DuplicateGroup{Images: []*types.ImageRecord{small, large}}

	rankingDetector().rankGroup(group, now)

	assert.Same(t, large, group.Images[0])
	assert.True(t, large.Recommended)
	assert.False(t, small.Recommended)
}

func TestRankGroupRecencyBreaksTies(t *testing.T) {
	now := time.Now()
	older := &types.ImageRecord{
		Path:       "photos/older.jpg",
		Width:      1600,
		Height:     1200,
		Size:       500_000,
		Format:     "jpg",
		ModifiedAt: now.Add(-400 * 24 * time.Hour),
	}
	newer := &types.ImageRecord{
		Path:       "photos/newer.jpg",
		Width:      1600,
		Height:     1200,
		Size:       500_000,
		Format:     "jpg",
		ModifiedAt: now,
	}
	group := &types.DuplicateGroup{Images: []*types.ImageRecord{older, newer}}

	rankingDetector().rankGroup(group, now)

	assert.Same(t, newer, group.Images[0])
	assert.True(t, newer.Recommended)
}

func TestRankGroupScoresStayInRange(t *testing.T) {
	now := time.Now()
	group := &types.DuplicateGroup{Images: []*types.ImageRecord{
		{Path: "a.png", Width: 10000, Height: 10000, Size: 1 << 30, Format: "png", ModifiedAt: now},
		{Path: "deep/nested/dir/tree/many/levels/down/b.gif", Width: 1, Height: 1, Size: 1, Format: "gif", ModifiedAt: now.Add(-10 * 365 * 24 * time.Hour)},
		{Path: "c.xyz", Width: 640, Height: 480, Size: 10_000, Format: "xyz", ModifiedAt: now.Add(-30 * 24 * time.Hour)},
	}}

	rankingDetector().rankGroup(group, now)

	for _, img := range group.Images {
		assert.GreaterOrEqual(t, img.QualityScore, 0.0)
		assert.LessOrEqual(t, img.QualityScore, 1.0)
	}
}

func TestRecencyDecay(t *testing.T) {
	now := time.Now()
	window := 100 * 24 * time.Hour

	assert.Equal(t, 1.0, recency(now, now, window))
	assert.Equal(t, 0.0, recency(now.Add(-window), now, window))
	assert.InDelta(t, 0.5, recency(now.Add(-window/2), now, window), 1e-9)
	assert.Equal(t, 1.0, recency(now.Add(time.Hour), now, window))
	assert.Equal(t, 0.0, recency(now, now, 0))
}

func TestEnforceRecommendationInvariantsRepairsGroups(t *testing.T) {
	none := &types.DuplicateGroup{Images: []*types.ImageRecord{
		{Path: "a.jpg"}, {Path: "b.jpg"},
	}}
	all := &types.DuplicateGroup{Images: []*types.ImageRecord{
		{Path: "c.jpg", Recommended: true}, {Path: "d.jpg", Recommended: true},
	}}

	enforceRecommendationInvariants([]*types.DuplicateGroup{none, all})

	require.NotNil(t, none.Recommended())
	assert.Same(t, none.Images[0], none.Recommended())
	assert.Len(t, none.DeletionCandidates(), 1)

	require.NotNil(t, all.Recommended())
	assert.Same(t, all.Images[0], all.Recommended())
	assert.Len(t, all.DeletionCandidates(), 1)
}

func TestFormatPreferenceFavorsLossless(t *testing.T) {
	assert.Greater(t, formatPreference["png"], formatPreference["jpg"])
	assert.Greater(t, formatPreference["tiff"], formatPreference["gif"])
}
