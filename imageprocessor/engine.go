package imageprocessor

import (
	"context"
	"sync"

	"imagededup/config"
	"imagededup/logging"
	"imagededup/types"
)

// Breakdown keys for the local similarity methods.
const (
	MethodAHash      = "ahash"
	MethodStructural = "structural"
	MethodHistogram  = "histogram"
)

// Engine computes local perceptual similarity between images. Features are
// extracted once per image and cached, so pairwise comparisons are pure
// arithmetic and symmetric by construction.
type Engine struct {
	cfg config.Detection

	mu       sync.RWMutex
	features map[string]*Features
	failed   map[string]error
}

// NewEngine returns an engine with the given detection settings.
func NewEngine(cfg config.Detection) *Engine {
	return &Engine{
		cfg:      cfg,
		features: make(map[string]*Features),
		failed:   make(map[string]error),
	}
}

type extractResult struct {
	path     string
	features *Features
	err      error
}

// Prepare extracts features for every path with bounded parallelism. An
// image that fails to decode is recorded and will score 0 in comparisons;
// it never aborts the batch. Prepare returns early when ctx is cancelled.
func (e *Engine) Prepare(ctx context.Context, paths []string) error {
	pending := make([]string, 0, len(paths))
	e.mu.RLock()
	for _, path := range paths {
		if _, ok := e.features[path]; ok {
			continue
		}
		if _, ok := e.failed[path]; ok {
			continue
		}
		pending = append(pending, path)
	}
	e.mu.RUnlock()

	if len(pending) == 0 {
		return ctx.Err()
	}

	var wg sync.WaitGroup
	resultsChan := make(chan extractResult, len(pending))
	semaphore := make(chan struct{}, e.cfg.Workers)

	dispatched := 0
	for _, path := range pending {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}
		dispatched++

		go func(p string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			features, err := ExtractFeatures(p, e.cfg.HashGridSize, e.cfg.StructuralGridSize)
			resultsChan <- extractResult{path: p, features: features, err: err}
		}(path)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Workers only report results; the cache is updated here, in the flow
	// that owns it.
	for result := range resultsChan {
		e.mu.Lock()
		if result.err != nil {
			e.failed[result.path] = result.err
			logging.LogWarning("feature extraction failed for %s: %v", result.path, result.err)
		} else {
			e.features[result.path] = result.features
		}
		e.mu.Unlock()
	}

	return ctx.Err()
}

// Features returns the cached feature set for a path.
func (e *Engine) Features(path string) (*Features, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.features[path]
	return f, ok
}

// Compare combines the three local methods into one similarity score for a
// pair of prepared images. A method that cannot run contributes 0 similarity
// for that method only; when no method can run at all, similarity and
// confidence are both 0 so the pair can never match.
func (e *Engine) Compare(pathA, pathB string) types.SimilarityScore {
	score := types.SimilarityScore{
		PathA:     pathA,
		PathB:     pathB,
		Method:    types.MethodPerceptual,
		Breakdown: make(map[string]float64),
	}

	featA, okA := e.Features(pathA)
	featB, okB := e.Features(pathB)
	if !okA || !okB {
		score.Breakdown[MethodAHash] = 0
		score.Breakdown[MethodStructural] = 0
		score.Breakdown[MethodHistogram] = 0
		return score
	}

	score.Breakdown[MethodAHash] = HashSimilarity(featA.AHash, featB.AHash)
	score.Breakdown[MethodStructural] = StructuralSimilarity(featA.Grid, featB.Grid)
	score.Breakdown[MethodHistogram] = HistogramSimilarity(&featA.Hist, &featB.Hist)

	totalWeight := e.cfg.AHashWeight + e.cfg.StructuralWeight + e.cfg.HistogramWeight
	weighted := score.Breakdown[MethodAHash]*e.cfg.AHashWeight +
		score.Breakdown[MethodStructural]*e.cfg.StructuralWeight +
		score.Breakdown[MethodHistogram]*e.cfg.HistogramWeight

	score.Similarity = weighted / totalWeight
	score.Confidence = e.cfg.LocalConfidence
	return score
}

// PrefilterPass reports whether a pair is close enough on the coarse
// difference hash to justify full scoring. Pairs with no usable pre-filter
// hash always pass through to the full comparison.
func (e *Engine) PrefilterPass(pathA, pathB string) bool {
	featA, okA := e.Features(pathA)
	featB, okB := e.Features(pathB)
	if !okA || !okB {
		return true
	}
	if featA.DHash == nil || featB.DHash == nil {
		return true
	}

	distance, err := featA.DHash.Distance(featB.DHash)
	if err != nil {
		return true
	}
	return distance <= e.cfg.PrefilterCutoff
}
