package provider

import (
	"context"
	"sync"
	"time"

	"imagededup/config"
	"imagededup/logging"
	"imagededup/types"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// callTimeout bounds a single provider call so one hung provider cannot
// stall the whole comparison.
const callTimeout = 15 * time.Second

// LocalScorer is the in-process similarity engine feeding the consensus.
type LocalScorer interface {
	Compare(pathA, pathB string) types.SimilarityScore
}

// Consensus queries the configured providers for a pair, merges their votes
// with the local score using a fixed weight table, and applies the match
// gate. It functions with zero providers configured.
type Consensus struct {
	local     LocalScorer
	providers []Provider
	cfg       config.Providers

	threshold     float64
	minConfidence float64

	// One token bucket per provider keeps the mandatory delay between
	// calls to that provider; the semaphore caps calls in flight overall.
	limiters map[string]*rate.Limiter
	inflight *semaphore.Weighted
}

// NewConsensus builds the consensus layer. Thresholds come from the
// detection configuration so the match gate has a single source of truth.
func NewConsensus(local LocalScorer, providers []Provider, cfg config.Providers, detection config.Detection) *Consensus {
	limiters := make(map[string]*rate.Limiter, len(providers))
	for _, p := range providers {
		limiters[p.Name()] = rate.NewLimiter(rate.Every(cfg.Interval), 1)
	}

	return &Consensus{
		local:         local,
		providers:     providers,
		cfg:           cfg,
		threshold:     detection.MatchThreshold,
		minConfidence: detection.MinConfidence,
		limiters:      limiters,
		inflight:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

type vote struct {
	name       string
	similarity float64
	confidence float64
	weight     float64
}

// Compare produces the consensus similarity score for one pair. Provider
// faults and timeouts drop only that provider's vote; when nothing at all
// contributes, similarity and confidence are both 0, which can never match.
func (c *Consensus) Compare(ctx context.Context, pathA, pathB string) types.SimilarityScore {
	votes := make([]vote, 0, len(c.providers)+1)

	localScore := c.local.Compare(pathA, pathB)
	if localScore.Confidence > 0 {
		votes = append(votes, vote{
			name:       "local",
			similarity: localScore.Similarity,
			confidence: localScore.Confidence,
			weight:     c.cfg.LocalWeight,
		})
	}

	votes = append(votes, c.collectProviderVotes(ctx, pathA, pathB)...)

	score := types.SimilarityScore{
		PathA:     pathA,
		PathB:     pathB,
		Method:    types.MethodPerceptual,
		Breakdown: localScore.Breakdown,
	}
	if score.Breakdown == nil {
		score.Breakdown = make(map[string]float64)
	}

	var totalWeight, weightedSim, weightedConf float64
	providerVotes := 0
	for _, v := range votes {
		totalWeight += v.weight
		weightedSim += v.similarity * v.weight
		weightedConf += v.confidence * v.weight
		score.Breakdown[v.name] = v.similarity
		if v.name != "local" {
			providerVotes++
		}
	}

	// Fail closed: no local methods and no providers means no match.
	if totalWeight == 0 {
		return score
	}

	score.Similarity = weightedSim / totalWeight
	score.Confidence = weightedConf / totalWeight
	if providerVotes > 0 {
		score.Method = types.MethodConsensus
	}

	return score
}

// IsMatch applies the match gate: both similarity and confidence must clear
// their thresholds.
func (c *Consensus) IsMatch(score types.SimilarityScore) bool {
	return score.Similarity >= c.threshold && score.Confidence >= c.minConfidence
}

type providerResult struct {
	v   vote
	err error
}

// collectProviderVotes fans the pair out to every provider, respecting the
// per-provider rate limit and the global in-flight cap. The rate-limiter
// wait and the call itself are the only suspension points.
func (c *Consensus) collectProviderVotes(ctx context.Context, pathA, pathB string) []vote {
	if len(c.providers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	resultsChan := make(chan providerResult, len(c.providers))

	for _, p := range c.providers {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()

			result, err := c.callProvider(ctx, p, pathA, pathB)
			if err != nil {
				resultsChan <- providerResult{err: &types.ProviderFailure{Provider: p.Name(), Err: err}}
				return
			}
			resultsChan <- providerResult{v: vote{
				name:       p.Name(),
				similarity: result.Similarity,
				confidence: result.Confidence,
				weight:     c.cfg.ProviderWeight,
			}}
		}(p)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var votes []vote
	for result := range resultsChan {
		if result.err != nil {
			logging.LogWarning("%v", result.err)
			continue
		}
		votes = append(votes, result.v)
	}

	return votes
}

func (c *Consensus) callProvider(ctx context.Context, p Provider, pathA, pathB string) (Result, error) {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer c.inflight.Release(1)

	if limiter, ok := c.limiters[p.Name()]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	return p.Compare(callCtx, pathA, pathB)
}
