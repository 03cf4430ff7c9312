package imageprocessor

import (
	"testing"

	"imagededup/config"

	"github.com/corona10/goimagehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDetectionConfig() config.Detection {
	cfg := config.Default().Detection
	cfg.Workers = 2
	return cfg
}

// seedFeatures plants a precomputed feature set in the engine cache, standing
// in for a Prepare run without touching image files.
func seedFeatures(e *Engine, path string, features *Features) {
	e.mu.Lock()
	e.features[path] = features
	e.mu.Unlock()
}

func flatFeatures(path string, value uint8) *Features {
	grid := make([]RGB, 16)
	for i := range grid {
		grid[i] = RGB{value, value, value}
	}
	var hist [3][256]float64
	for c := 0; c < 3; c++ {
		hist[c][value] = 1
	}
	return &Features{
		Path:     path,
		AHash:    "1010101010101010",
		Grid:     grid,
		GridSize: 4,
		Hist:     hist,
	}
}

func TestCompareIdenticalFeatures(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	seedFeatures(engine, "a.png", flatFeatures("a.png", 100))
	seedFeatures(engine, "b.png", flatFeatures("b.png", 100))

	score := engine.Compare("a.png", "b.png")

	assert.InDelta(t, 1.0, score.Similarity, 1e-9)
	assert.Equal(t, engine.cfg.LocalConfidence, score.Confidence)
	assert.InDelta(t, 1.0, score.Breakdown[MethodAHash], 1e-9)
	assert.InDelta(t, 1.0, score.Breakdown[MethodStructural], 1e-9)
	assert.InDelta(t, 1.0, score.Breakdown[MethodHistogram], 1e-9)
}

func TestCompareSymmetric(t *testing.T) {
	engine := NewEngine(testDetectionConfig())

	a := flatFeatures("a.png", 40)
	a.AHash = "1111000011110000"
	b := flatFeatures("b.png", 200)
	b.AHash = "1111000000001111"
	seedFeatures(engine, "a.png", a)
	seedFeatures(engine, "b.png", b)

	forward := engine.Compare("a.png", "b.png")
	backward := engine.Compare("b.png", "a.png")

	assert.Equal(t, forward.Similarity, backward.Similarity)
	assert.Equal(t, forward.Confidence, backward.Confidence)
	assert.Equal(t, forward.Breakdown, backward.Breakdown)
}

func TestCompareMissingFeaturesFailsClosed(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	seedFeatures(engine, "a.png", flatFeatures("a.png", 100))

	score := engine.Compare("a.png", "never-prepared.png")

	assert.Equal(t, 0.0, score.Similarity)
	assert.Equal(t, 0.0, score.Confidence)
	assert.Equal(t, 0.0, score.Breakdown[MethodAHash])
	assert.Equal(t, 0.0, score.Breakdown[MethodStructural])
	assert.Equal(t, 0.0, score.Breakdown[MethodHistogram])
}

func TestCompareDegradesPerMethod(t *testing.T) {
	engine := NewEngine(testDetectionConfig())

	// Only the histograms survived extraction; the failed methods score 0
	// without dragging the surviving one down to an error.
	a := flatFeatures("a.png", 90)
	a.AHash = ""
	a.Grid = nil
	b := flatFeatures("b.png", 90)
	b.AHash = ""
	b.Grid = nil
	seedFeatures(engine, "a.png", a)
	seedFeatures(engine, "b.png", b)

	score := engine.Compare("a.png", "b.png")

	assert.Equal(t, 0.0, score.Breakdown[MethodAHash])
	assert.Equal(t, 0.0, score.Breakdown[MethodStructural])
	assert.InDelta(t, 1.0, score.Breakdown[MethodHistogram], 1e-9)

	cfg := engine.cfg
	totalWeight := cfg.AHashWeight + cfg.StructuralWeight + cfg.HistogramWeight
	assert.InDelta(t, cfg.HistogramWeight/totalWeight, score.Similarity, 1e-9)
	assert.Equal(t, cfg.LocalConfidence, score.Confidence)
}

func TestPrefilterPassWithoutHashes(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	seedFeatures(engine, "a.png", flatFeatures("a.png", 10))
	seedFeatures(engine, "b.png", flatFeatures("b.png", 250))

	// Unprepared pairs and pairs without a pre-filter hash pass through to
	// the full comparison.
	assert.True(t, engine.PrefilterPass("x.png", "y.png"))
	assert.True(t, engine.PrefilterPass("a.png", "b.png"))
}

func TestPrefilterCutsDistantPairs(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	require.Greater(t, engine.cfg.PrefilterCutoff, 0)

	near := flatFeatures("near.png", 10)
	near.DHash = goimagehash.NewImageHash(0, goimagehash.DHash)
	same := flatFeatures("same.png", 10)
	same.DHash = goimagehash.NewImageHash(0, goimagehash.DHash)
	far := flatFeatures("far.png", 10)
	far.DHash = goimagehash.NewImageHash(^uint64(0), goimagehash.DHash)

	seedFeatures(engine, "near.png", near)
	seedFeatures(engine, "same.png", same)
	seedFeatures(engine, "far.png", far)

	assert.True(t, engine.PrefilterPass("near.png", "same.png"))
	assert.False(t, engine.PrefilterPass("near.png", "far.png"))
}

func TestFeaturesLookup(t *testing.T) {
	engine := NewEngine(testDetectionConfig())
	planted := flatFeatures("a.png", 50)
	seedFeatures(engine, "a.png", planted)

	got, ok := engine.Features("a.png")
	require.True(t, ok)
	assert.Same(t, planted, got)

	_, ok = engine.Features("missing.png")
	assert.False(t, ok)
}
